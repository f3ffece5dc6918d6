package repo

import (
	"context"
	"database/sql"
	"time"

	"fieldops/internal/domain"
)

const sessionColumns = `id,operation_id,name,status,points_per_tick,tick_interval_sec,duration_minutes,started_at,ended_at,created_at`

func scanSession(row rowScanner) (domain.DominationSession, error) {
	var s domain.DominationSession
	var opID, started, ended sql.NullString
	var duration sql.NullInt64
	var created string
	err := row.Scan(&s.ID, &opID, &s.Name, &s.Status, &s.PointsPerTick, &s.TickIntervalSec, &duration, &started, &ended, &created)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.OperationID = stringPtr(opID)
	s.DurationMinutes = intPtr(duration)
	if s.StartedAt, err = parseNullTS(started); err != nil {
		return s, err
	}
	if s.EndedAt, err = parseNullTS(ended); err != nil {
		return s, err
	}
	s.CreatedAt, err = parseTS(created)
	return s, err
}

func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.DominationSession) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO domination_sessions(`+sessionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, nullableStringPtr(s.OperationID), s.Name, s.Status, s.PointsPerTick, s.TickIntervalSec, nullableIntPtr(s.DurationMinutes),
		nullableTime(s.StartedAt), nullableTime(s.EndedAt), ts(s.CreatedAt))
	return err
}

func (r Repo) GetSession(ctx context.Context, tx *sql.Tx, id string) (domain.DominationSession, error) {
	return scanSession(r.q(tx).QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM domination_sessions WHERE id=?`, id))
}

// ListSessions returns sessions, optionally filtered by status.
func (r Repo) ListSessions(ctx context.Context, tx *sql.Tx, statuses ...domain.SessionStatus) ([]domain.DominationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM domination_sessions`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DominationSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateSessionStatus changes status and, when given, the start or end time.
func (r Repo) UpdateSessionStatus(ctx context.Context, tx *sql.Tx, id string, status domain.SessionStatus, startedAt, endedAt *time.Time) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE domination_sessions SET status=?, started_at=COALESCE(?,started_at), ended_at=COALESCE(?,ended_at) WHERE id=?`,
		status, nullableTime(startedAt), nullableTime(endedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDominationTeam(ctx context.Context, tx *sql.Tx, t domain.DominationTeam) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO domination_teams(id,session_id,name,color,sort_order) VALUES (?,?,?,?,?)`,
		t.ID, t.SessionID, t.Name, nullable(t.Color), t.Order)
	return err
}

func (r Repo) GetDominationTeam(ctx context.Context, tx *sql.Tx, id string) (domain.DominationTeam, error) {
	var t domain.DominationTeam
	var color sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,session_id,name,color,sort_order FROM domination_teams WHERE id=?`, id).
		Scan(&t.ID, &t.SessionID, &t.Name, &color, &t.Order)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Color = color.String
	return t, err
}

func (r Repo) ListDominationTeams(ctx context.Context, tx *sql.Tx, sessionID string) ([]domain.DominationTeam, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,session_id,name,color,sort_order FROM domination_teams WHERE session_id=? ORDER BY sort_order, name, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DominationTeam
	for rows.Next() {
		var t domain.DominationTeam
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Name, &color, &t.Order); err != nil {
			return nil, err
		}
		t.Color = color.String
		res = append(res, t)
	}
	return res, rows.Err()
}

const pointColumns = `id,session_id,name,qr_token,sort_order,lat,lon`

func scanPoint(row rowScanner) (domain.DominationPoint, error) {
	var p domain.DominationPoint
	var lat, lon sql.NullFloat64
	err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.QRToken, &p.Order, &lat, &lon)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Lat = floatPtr(lat)
	p.Lon = floatPtr(lon)
	return p, err
}

func (r Repo) InsertDominationPoint(ctx context.Context, tx *sql.Tx, p domain.DominationPoint) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO domination_points(`+pointColumns+`) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.SessionID, p.Name, p.QRToken, p.Order, nullableFloatPtr(p.Lat), nullableFloatPtr(p.Lon))
	return err
}

func (r Repo) GetDominationPointByToken(ctx context.Context, tx *sql.Tx, token string) (domain.DominationPoint, error) {
	return scanPoint(r.q(tx).QueryRowContext(ctx, `SELECT `+pointColumns+` FROM domination_points WHERE qr_token=?`, token))
}

func (r Repo) ListDominationPoints(ctx context.Context, tx *sql.Tx, sessionID string) ([]domain.DominationPoint, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+pointColumns+` FROM domination_points WHERE session_id=? ORDER BY sort_order, name, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DominationPoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

const captureColumns = `seq,id,point_id,team_id,session_id,captured_at,captured_by`

func scanCapture(row rowScanner) (domain.DominationCapture, error) {
	var c domain.DominationCapture
	var captured string
	var by sql.NullString
	err := row.Scan(&c.Seq, &c.ID, &c.PointID, &c.TeamID, &c.SessionID, &captured, &by)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.CapturedBy = by.String
	c.CapturedAt, err = parseTS(captured)
	return c, err
}

// InsertCapture appends to the capture ledger and returns the assigned sequence.
func (r Repo) InsertCapture(ctx context.Context, tx *sql.Tx, c domain.DominationCapture) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO domination_captures(id,point_id,team_id,session_id,captured_at,captured_by) VALUES (?,?,?,?,?,?)`,
		c.ID, c.PointID, c.TeamID, c.SessionID, ts(c.CapturedAt), nullable(c.CapturedBy))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestCapture returns the capture currently controlling a point.
func (r Repo) LatestCapture(ctx context.Context, tx *sql.Tx, pointID string) (domain.DominationCapture, error) {
	return scanCapture(r.q(tx).QueryRowContext(ctx, `SELECT `+captureColumns+` FROM domination_captures WHERE point_id=? ORDER BY captured_at DESC, seq DESC LIMIT 1`, pointID))
}

// ListCaptures returns the session's capture ledger ordered by (captured_at, seq).
func (r Repo) ListCaptures(ctx context.Context, tx *sql.Tx, sessionID string) ([]domain.DominationCapture, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+captureColumns+` FROM domination_captures WHERE session_id=? ORDER BY captured_at, seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DominationCapture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ReplaceScores overwrites every score row of the session.
func (r Repo) ReplaceScores(ctx context.Context, tx *sql.Tx, sessionID string, scores []domain.DominationScore) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `DELETE FROM domination_scores WHERE session_id=?`, sessionID); err != nil {
		return err
	}
	for _, s := range scores {
		if _, err := q.ExecContext(ctx, `INSERT INTO domination_scores(session_id,team_id,points,updated_at) VALUES (?,?,?,?)`,
			sessionID, s.TeamID, s.Points, ts(s.UpdatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListScores(ctx context.Context, tx *sql.Tx, sessionID string) ([]domain.DominationScore, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT s.session_id,s.team_id,s.points,s.updated_at FROM domination_scores s
JOIN domination_teams t ON t.id = s.team_id WHERE s.session_id=? ORDER BY s.points DESC, t.sort_order, t.name`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DominationScore
	for rows.Next() {
		var s domain.DominationScore
		var updated string
		if err := rows.Scan(&s.SessionID, &s.TeamID, &s.Points, &updated); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
