package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"lumenforge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const taskColumns = `id,title,COALESCE(description,''),phase,price,points,lumen_reward,difficulty,min_level,status,claimant_id,claimed_at,validated_at,created_at,updated_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	var price, lumenReward, status, difficulty string
	var claimantID, claimedAt, validatedAt sql.NullString
	err := scan(&t.ID, &t.Title, &t.Description, &t.Phase, &price, &t.Points, &lumenReward,
		&difficulty, &t.MinLevel, &status, &claimantID, &claimedAt, &validatedAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return t, err
	}
	if t.LumenReward, err = decimal.NewFromString(lumenReward); err != nil {
		return t, err
	}
	if t.Status, err = domain.ParseTaskStatus(status); err != nil {
		return t, err
	}
	if t.Difficulty, err = domain.ParseDifficulty(difficulty); err != nil {
		return t, err
	}
	if claimantID.Valid {
		t.ClaimantID = &claimantID.String
	}
	if claimedAt.Valid {
		t.ClaimedAt = &claimedAt.String
	}
	if validatedAt.Valid {
		t.ValidatedAt = &validatedAt.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,phase,price,points,lumen_reward,difficulty,min_level,status,claimant_id,claimed_at,validated_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Phase, t.Price.String(), t.Points, t.LumenReward.String(),
		string(t.Difficulty), t.MinLevel, string(t.Status), nullableStringPtr(t.ClaimantID),
		nullableStringPtr(t.ClaimedAt), nullableStringPtr(t.ValidatedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return r.getTask(ctx, tx, id)
}

func (r Repo) getTask(ctx context.Context, q querier, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	Status     string
	Phase      string
	ClaimantID string
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Phase != "" {
		clauses = append(clauses, "phase=?")
		args = append(args, f.Phase)
	}
	if f.ClaimantID != "" {
		clauses = append(clauses, "claimant_id=?")
		args = append(args, f.ClaimantID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ClaimTask performs the mutual-exclusion transition available->claimed as a
// single conditional update. Returns the number of rows moved: 1 for the
// winner, 0 when another claimant got there first.
func (r Repo) ClaimTask(ctx context.Context, tx *sql.Tx, taskID, userID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, claimant_id=?, claimed_at=?, updated_at=? WHERE id=? AND status=?`,
		string(domain.TaskClaimed), userID, now, now, taskID, string(domain.TaskAvailable))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkTaskSubmitted moves claimed->submitted only for the current claimant.
func (r Repo) MarkTaskSubmitted(ctx context.Context, tx *sql.Tx, taskID, userID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, updated_at=? WHERE id=? AND status=? AND claimant_id=?`,
		string(domain.TaskSubmitted), now, taskID, string(domain.TaskClaimed), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ValidateTask moves submitted->validated; 0 rows means the task was already
// settled or never reached submitted.
func (r Repo) ValidateTask(ctx context.Context, tx *sql.Tx, taskID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, validated_at=?, updated_at=? WHERE id=? AND status=?`,
		string(domain.TaskValidated), now, now, taskID, string(domain.TaskSubmitted))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReopenTask returns a claimed or submitted task to the pool, clearing the
// claimant so the work can be redone.
func (r Repo) ReopenTask(ctx context.Context, tx *sql.Tx, taskID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, claimant_id=NULL, claimed_at=NULL, updated_at=? WHERE id=? AND status IN (?,?)`,
		string(domain.TaskAvailable), now, taskID, string(domain.TaskClaimed), string(domain.TaskSubmitted))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnlockTask makes a locked task available.
func (r Repo) UnlockTask(ctx context.Context, tx *sql.Tx, taskID, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(domain.TaskAvailable), now, taskID, string(domain.TaskLocked))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
