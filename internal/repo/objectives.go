package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"fieldops/internal/domain"
)

const objectiveColumns = `id,operation_id,type,name,COALESCE(description,''),points,config_json,parent_objective_id,qr_token,sort_order,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObjective(row rowScanner) (domain.Objective, error) {
	var o domain.Objective
	var cfg, created string
	var parent sql.NullString
	err := row.Scan(&o.ID, &o.OperationID, &o.Type, &o.Name, &o.Description, &o.Points, &cfg, &parent, &o.QRToken, &o.Order, &created)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Config = json.RawMessage(cfg)
	o.ParentObjectiveID = stringPtr(parent)
	o.CreatedAt, err = parseTS(created)
	return o, err
}

func configText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func (r Repo) InsertObjective(ctx context.Context, tx *sql.Tx, o domain.Objective) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO objectives(id,operation_id,type,name,description,points,config_json,parent_objective_id,qr_token,sort_order,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.OperationID, o.Type, o.Name, nullable(o.Description), o.Points, configText(o.Config), nullableStringPtr(o.ParentObjectiveID), o.QRToken, o.Order, ts(o.CreatedAt))
	return err
}

// UpdateObjective rewrites the mutable fields. Type and QR token never change.
func (r Repo) UpdateObjective(ctx context.Context, tx *sql.Tx, o domain.Objective) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE objectives SET name=?, description=?, points=?, config_json=?, parent_objective_id=?, sort_order=? WHERE id=?`,
		o.Name, nullable(o.Description), o.Points, configText(o.Config), nullableStringPtr(o.ParentObjectiveID), o.Order, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetObjective(ctx context.Context, tx *sql.Tx, id string) (domain.Objective, error) {
	return scanObjective(r.q(tx).QueryRowContext(ctx, `SELECT `+objectiveColumns+` FROM objectives WHERE id=?`, id))
}

func (r Repo) GetObjectiveByToken(ctx context.Context, tx *sql.Tx, token string) (domain.Objective, error) {
	return scanObjective(r.q(tx).QueryRowContext(ctx, `SELECT `+objectiveColumns+` FROM objectives WHERE qr_token=?`, token))
}

func (r Repo) ListObjectives(ctx context.Context, tx *sql.Tx, operationID string) ([]domain.Objective, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+objectiveColumns+` FROM objectives WHERE operation_id=? ORDER BY sort_order, created_at, id`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Objective
	for rows.Next() {
		o, err := scanObjective(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ParentOf returns the parent objective id, or "" for a root objective.
func (r Repo) ParentOf(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var parent sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT parent_objective_id FROM objectives WHERE id=?`, id).Scan(&parent)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return parent.String, nil
}
