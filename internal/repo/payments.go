package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"lumenforge/internal/domain"
)

const paymentColumns = `id,user_id,task_id,amount,status,method,external_ref,paid_at,created_at`

func scanPayment(scan func(...any) error) (domain.Payment, error) {
	var p domain.Payment
	var amount, status string
	var externalRef, paidAt sql.NullString
	err := scan(&p.ID, &p.UserID, &p.TaskID, &amount, &status, &p.Method, &externalRef, &paidAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return p, err
	}
	if p.Status, err = domain.ParsePaymentStatus(status); err != nil {
		return p, err
	}
	if externalRef.Valid {
		p.ExternalRef = &externalRef.String
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.String
	}
	return p, nil
}

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(id,user_id,task_id,amount,status,method,external_ref,paid_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.TaskID, p.Amount.String(), string(p.Status), p.Method,
		nullableStringPtr(p.ExternalRef), nullableStringPtr(p.PaidAt), p.CreatedAt)
	return err
}

func (r Repo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id)
	return scanPayment(row.Scan)
}

func (r Repo) GetPaymentByTask(ctx context.Context, taskID, userID string) (domain.Payment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE task_id=? AND user_id=?`, taskID, userID)
	return scanPayment(row.Scan)
}

// SetPaymentOutcome is the payout system's write-back: pending payments move
// to completed or failed exactly once.
func (r Repo) SetPaymentOutcome(ctx context.Context, tx *sql.Tx, id string, status domain.PaymentStatus, externalRef, paidAt string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status=?, external_ref=?, paid_at=? WHERE id=? AND status=?`,
		string(status), nullable(externalRef), nullable(paidAt), id, string(domain.PaymentPending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type PaymentFilters struct {
	UserID string
	Status string
	Limit  int
}

func (r Repo) ListPayments(ctx context.Context, f PaymentFilters) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += " AND user_id=?"
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		query += " AND status=?"
		args = append(args, f.Status)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
