package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"lumenforge/internal/domain"
)

const contributorColumns = `id,COALESCE(display_name,''),level,tasks_completed,tasks_validated,points,lumens,created_at`

func scanContributor(scan func(...any) error) (domain.Contributor, error) {
	var c domain.Contributor
	var lumens string
	err := scan(&c.ID, &c.DisplayName, &c.Level, &c.TasksCompleted, &c.TasksValidated, &c.Points, &lumens, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Lumens, err = decimal.NewFromString(lumens)
	return c, err
}

func (r Repo) GetContributor(ctx context.Context, id string) (domain.Contributor, error) {
	return r.getContributor(ctx, r.DB, id)
}

func (r Repo) GetContributorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contributor, error) {
	return r.getContributor(ctx, tx, id)
}

func (r Repo) getContributor(ctx context.Context, q querier, id string) (domain.Contributor, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contributorColumns+` FROM contributors WHERE id=?`, id)
	return scanContributor(row.Scan)
}

// EnsureContributor inserts a level-1 contributor row if none exists yet.
func (r Repo) EnsureContributor(ctx context.Context, tx *sql.Tx, id, now string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO contributors(id,level,created_at) VALUES (?,1,?) ON CONFLICT(id) DO NOTHING`, id, now)
	return err
}

func (r Repo) SetContributorLevel(ctx context.Context, id string, level int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE contributors SET level=? WHERE id=?`, level, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditContributor applies the settlement effects on the contributor row
// and appends the matching ledger entry in the same transaction. The two
// writes are inseparable: the balance only ever moves with its log entry.
func (r Repo) CreditContributor(ctx context.Context, tx *sql.Tx, userID string, points int, lumens decimal.Decimal, kind, taskID, now string) error {
	c, err := r.GetContributorTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	newBalance := c.Lumens.Add(lumens)
	res, err := tx.ExecContext(ctx,
		`UPDATE contributors SET tasks_completed=tasks_completed+1, tasks_validated=tasks_validated+1, points=points+?, lumens=? WHERE id=?`,
		points, newBalance.String(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries(user_id,amount,kind,task_id,created_at) VALUES (?,?,?,?,?)`,
		userID, lumens.String(), kind, nullable(taskID), now)
	return err
}

func (r Repo) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT id,user_id,amount,kind,task_id,created_at FROM ledger_entries WHERE user_id=? ORDER BY id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amount string
		var taskID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &e.Kind, &taskID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if taskID.Valid {
			e.TaskID = &taskID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LedgerSum returns the sum of a contributor's transaction log. It must
// always equal the contributor's lumen balance; a mismatch is a
// data-integrity fault surfaced for manual reconciliation.
func (r Repo) LedgerSum(ctx context.Context, userID string) (decimal.Decimal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT amount FROM ledger_entries WHERE user_id=?`, userID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	sum := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(d)
	}
	return sum, rows.Err()
}
