package repo

import (
	"context"
	"database/sql"

	"lumenforge/internal/domain"
)

const submissionColumns = `id,task_id,author_id,COALESCE(notes,''),attachment_ref,ai_score,COALESCE(ai_feedback,''),status,reviewer_id,COALESCE(reviewer_feedback,''),created_at,updated_at`

func scanSubmission(scan func(...any) error) (domain.Submission, error) {
	var s domain.Submission
	var status string
	var attachmentRef, reviewerID sql.NullString
	var aiScore sql.NullInt64
	err := scan(&s.ID, &s.TaskID, &s.AuthorID, &s.Notes, &attachmentRef, &aiScore, &s.AIFeedback,
		&status, &reviewerID, &s.ReviewerFeedback, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if s.Status, err = domain.ParseSubmissionStatus(status); err != nil {
		return s, err
	}
	if attachmentRef.Valid {
		s.AttachmentRef = &attachmentRef.String
	}
	if aiScore.Valid {
		v := int(aiScore.Int64)
		s.AIScore = &v
	}
	if reviewerID.Valid {
		s.ReviewerID = &reviewerID.String
	}
	return s, nil
}

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submissions(id,task_id,author_id,notes,attachment_ref,ai_score,ai_feedback,status,reviewer_id,reviewer_feedback,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, s.AuthorID, nullable(s.Notes), nullableStringPtr(s.AttachmentRef),
		nullableIntPtr(s.AIScore), nullable(s.AIFeedback), string(s.Status),
		nullableStringPtr(s.ReviewerID), nullable(s.ReviewerFeedback), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return r.getSubmission(ctx, r.DB, id)
}

func (r Repo) GetSubmissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Submission, error) {
	return r.getSubmission(ctx, tx, id)
}

func (r Repo) getSubmission(ctx context.Context, q querier, id string) (domain.Submission, error) {
	row := q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

// OpenSubmissionExists reports whether the task already has a submission
// that has not reached a terminal human decision.
func (r Repo) OpenSubmissionExists(ctx context.Context, tx *sql.Tx, taskID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM submissions WHERE task_id=? AND status IN (?,?,?) LIMIT 1`,
		taskID, string(domain.SubmissionPendingAI), string(domain.SubmissionAIApproved), string(domain.SubmissionAIFlagged))
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// SetSubmissionVerdict records the AI stage outcome. Guarded so a human
// decision already written can never be overwritten by a late scorer.
func (r Repo) SetSubmissionVerdict(ctx context.Context, tx *sql.Tx, id string, score int, feedback string, status domain.SubmissionStatus, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET ai_score=?, ai_feedback=?, status=?, updated_at=? WHERE id=? AND status IN (?,?,?)`,
		score, feedback, string(status), now, id,
		string(domain.SubmissionPendingAI), string(domain.SubmissionAIApproved), string(domain.SubmissionAIFlagged))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetSubmissionDecision writes the terminal human decision. The status guard
// is the AlreadyReviewed idempotency gate.
func (r Repo) SetSubmissionDecision(ctx context.Context, tx *sql.Tx, id, reviewerID, feedback string, status domain.SubmissionStatus, now string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET reviewer_id=?, reviewer_feedback=?, status=?, updated_at=? WHERE id=? AND status IN (?,?)`,
		reviewerID, feedback, string(status), now, id,
		string(domain.SubmissionAIApproved), string(domain.SubmissionAIFlagged))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type SubmissionFilters struct {
	TaskID   string
	AuthorID string
	Status   string
	Limit    int
}

func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilters) ([]domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE 1=1`
	var args []any
	if f.TaskID != "" {
		query += " AND task_id=?"
		args = append(args, f.TaskID)
	}
	if f.AuthorID != "" {
		query += " AND author_id=?"
		args = append(args, f.AuthorID)
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
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
