package repo

import (
	"context"
	"database/sql"

	"fieldops/internal/domain"
)

// InsertAttempt appends to the attempt ledger and returns the assigned sequence.
func (r Repo) InsertAttempt(ctx context.Context, tx *sql.Tx, a domain.Attempt) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO attempts(id,objective_id,team_id,value,success,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.ObjectiveID, a.TeamID, a.Value, a.Success, ts(a.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAttempts returns the attempts of a team on an objective in insertion order.
func (r Repo) ListAttempts(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) ([]domain.Attempt, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT seq,id,objective_id,team_id,value,success,created_at FROM attempts WHERE objective_id=? AND team_id=? ORDER BY seq`,
		objectiveID, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var created string
		if err := rows.Scan(&a.Seq, &a.ID, &a.ObjectiveID, &a.TeamID, &a.Value, &a.Success, &created); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountAttempts(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE objective_id=? AND team_id=?`, objectiveID, teamID).Scan(&n)
	return n, err
}
