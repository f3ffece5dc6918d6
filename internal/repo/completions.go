package repo

import (
	"context"
	"database/sql"

	"fieldops/internal/domain"
)

const completionColumns = `c.id,c.objective_id,c.team_id,c.points,c.completed_at,c.completed_by,c.lat,c.lon,c.device_info`

func scanCompletion(row rowScanner) (domain.Completion, error) {
	var c domain.Completion
	var completed string
	var by, device sql.NullString
	var lat, lon sql.NullFloat64
	err := row.Scan(&c.ID, &c.ObjectiveID, &c.TeamID, &c.Points, &completed, &by, &lat, &lon, &device)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.CompletedBy = by.String
	c.DeviceInfo = device.String
	c.Lat = floatPtr(lat)
	c.Lon = floatPtr(lon)
	c.CompletedAt, err = parseTS(completed)
	return c, err
}

// InsertCompletion writes the single completion row of (objective, team). A
// second insert for the same pair fails with a unique violation.
func (r Repo) InsertCompletion(ctx context.Context, tx *sql.Tx, c domain.Completion) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO completions(id,objective_id,team_id,points,completed_at,completed_by,lat,lon,device_info) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ObjectiveID, c.TeamID, c.Points, ts(c.CompletedAt), nullable(c.CompletedBy), nullableFloatPtr(c.Lat), nullableFloatPtr(c.Lon), nullable(c.DeviceInfo))
	return err
}

func (r Repo) GetCompletion(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) (domain.Completion, error) {
	return scanCompletion(r.q(tx).QueryRowContext(ctx, `SELECT `+completionColumns+` FROM completions c WHERE c.objective_id=? AND c.team_id=?`,
		objectiveID, teamID))
}

func (r Repo) HasCompletion(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM completions WHERE objective_id=? AND team_id=?`, objectiveID, teamID).Scan(&n)
	return n > 0, err
}

// CompletedAmong returns the subset of objectiveIDs the team has completed.
func (r Repo) CompletedAmong(ctx context.Context, tx *sql.Tx, teamID string, objectiveIDs []string) (map[string]bool, error) {
	done := make(map[string]bool, len(objectiveIDs))
	if len(objectiveIDs) == 0 {
		return done, nil
	}
	args := []any{teamID}
	for _, id := range objectiveIDs {
		args = append(args, id)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT objective_id FROM completions WHERE team_id=? AND objective_id IN (`+placeholders(len(objectiveIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		done[id] = true
	}
	return done, rows.Err()
}

// ListCompletions returns the completions of an operation, optionally
// restricted to one team, oldest first.
func (r Repo) ListCompletions(ctx context.Context, tx *sql.Tx, operationID, teamID string) ([]domain.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions c JOIN objectives o ON o.id = c.objective_id WHERE o.operation_id=?`
	args := []any{operationID}
	if teamID != "" {
		query += ` AND c.team_id=?`
		args = append(args, teamID)
	}
	query += ` ORDER BY c.completed_at, c.id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
