package repo

import (
	"context"
	"database/sql"

	"fieldops/internal/domain"
)

func (r Repo) InsertOperation(ctx context.Context, tx *sql.Tx, op domain.Operation) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO operations(id,name,status,created_at) VALUES (?,?,?,?)`,
		op.ID, op.Name, op.Status, ts(op.CreatedAt))
	return err
}

func (r Repo) GetOperation(ctx context.Context, tx *sql.Tx, id string) (domain.Operation, error) {
	var op domain.Operation
	var created string
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,status,created_at FROM operations WHERE id=?`, id).
		Scan(&op.ID, &op.Name, &op.Status, &created)
	if err == sql.ErrNoRows {
		return op, ErrNotFound
	}
	if err != nil {
		return op, err
	}
	op.CreatedAt, err = parseTS(created)
	return op, err
}

func (r Repo) ListOperations(ctx context.Context) ([]domain.Operation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM operations ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Operation
	for rows.Next() {
		var op domain.Operation
		var created string
		if err := rows.Scan(&op.ID, &op.Name, &op.Status, &created); err != nil {
			return nil, err
		}
		if op.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		res = append(res, op)
	}
	return res, rows.Err()
}

func (r Repo) UpdateOperationStatus(ctx context.Context, tx *sql.Tx, id string, status domain.OperationStatus) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE operations SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertOperationTeam(ctx context.Context, tx *sql.Tx, t domain.OperationTeam) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO operation_teams(operation_id,team_id,name,invitation) VALUES (?,?,?,?)
ON CONFLICT(operation_id,team_id) DO UPDATE SET name=excluded.name, invitation=excluded.invitation`,
		t.OperationID, t.TeamID, t.Name, t.Invitation)
	return err
}

func (r Repo) GetOperationTeam(ctx context.Context, tx *sql.Tx, operationID, teamID string) (domain.OperationTeam, error) {
	var t domain.OperationTeam
	err := r.q(tx).QueryRowContext(ctx, `SELECT operation_id,team_id,name,invitation FROM operation_teams WHERE operation_id=? AND team_id=?`,
		operationID, teamID).Scan(&t.OperationID, &t.TeamID, &t.Name, &t.Invitation)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListOperationTeams(ctx context.Context, tx *sql.Tx, operationID string) ([]domain.OperationTeam, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT operation_id,team_id,name,invitation FROM operation_teams WHERE operation_id=? ORDER BY name, team_id`, operationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OperationTeam
	for rows.Next() {
		var t domain.OperationTeam
		if err := rows.Scan(&t.OperationID, &t.TeamID, &t.Name, &t.Invitation); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
