package repo

import (
	"context"
	"database/sql"
	"time"

	"fieldops/internal/domain"
)

const timedActionColumns = `id,objective_id,team_id,kind,status,started_at,completed_at,deadline,start_lat,start_lon`

func scanTimedAction(row rowScanner) (domain.TimedAction, error) {
	var a domain.TimedAction
	var started string
	var completed, deadline sql.NullString
	var lat, lon sql.NullFloat64
	err := row.Scan(&a.ID, &a.ObjectiveID, &a.TeamID, &a.Kind, &a.Status, &started, &completed, &deadline, &lat, &lon)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if a.StartedAt, err = parseTS(started); err != nil {
		return a, err
	}
	if a.CompletedAt, err = parseNullTS(completed); err != nil {
		return a, err
	}
	if a.Deadline, err = parseNullTS(deadline); err != nil {
		return a, err
	}
	a.StartLat = floatPtr(lat)
	a.StartLon = floatPtr(lon)
	return a, nil
}

func (r Repo) InsertTimedAction(ctx context.Context, tx *sql.Tx, a domain.TimedAction) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO timed_actions(`+timedActionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ObjectiveID, a.TeamID, a.Kind, a.Status, ts(a.StartedAt), nullableTime(a.CompletedAt), nullableTime(a.Deadline),
		nullableFloatPtr(a.StartLat), nullableFloatPtr(a.StartLon))
	return err
}

// OpenTimedAction returns the IN_PROGRESS action of a team on an objective.
func (r Repo) OpenTimedAction(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) (domain.TimedAction, error) {
	return scanTimedAction(r.q(tx).QueryRowContext(ctx, `SELECT `+timedActionColumns+` FROM timed_actions WHERE objective_id=? AND team_id=? AND status='IN_PROGRESS'`,
		objectiveID, teamID))
}

// LatestTimedAction returns the most recently started action whatever its status.
func (r Repo) LatestTimedAction(ctx context.Context, tx *sql.Tx, objectiveID, teamID string) (domain.TimedAction, error) {
	return scanTimedAction(r.q(tx).QueryRowContext(ctx, `SELECT `+timedActionColumns+` FROM timed_actions WHERE objective_id=? AND team_id=? ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		objectiveID, teamID))
}

// FinishTimedAction moves an IN_PROGRESS action to a terminal status.
func (r Repo) FinishTimedAction(ctx context.Context, tx *sql.Tx, id string, status domain.TimedActionStatus, at time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE timed_actions SET status=?, completed_at=? WHERE id=? AND status='IN_PROGRESS'`,
		status, ts(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
