// Package engine implements the contribution pipeline: claim arbitration,
// submission intake, automated scoring, the human review gate and atomic
// settlement. Every operation runs in its own transaction and appends its
// audit events inside that transaction.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lumenforge/internal/config"
	"lumenforge/internal/domain"
	"lumenforge/internal/events"
	"lumenforge/internal/notify"
	"lumenforge/internal/repo"
	"lumenforge/internal/scoring"
)

// Scorer produces a verdict for a submission. scoring.Engine is the
// production implementation.
type Scorer interface {
	Score(ctx context.Context, in scoring.Input) scoring.Result
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Scorer Scorer
	Notify notify.Dispatcher
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) Engine {
	r := repo.Repo{DB: db}
	threshold := 70
	if cfg != nil && cfg.Review.AIConfidenceThreshold > 0 {
		threshold = cfg.Review.AIConfidenceThreshold
	}
	var provider *scoring.Provider
	var dispatcher notify.Dispatcher = notify.Noop{}
	if cfg != nil {
		provider = scoring.NewProvider(scoring.ProviderConfig{
			BaseURL:        cfg.Scoring.BaseURL,
			APIKey:         cfg.Scoring.APIKey,
			Model:          cfg.Scoring.Model,
			TimeoutSeconds: cfg.Scoring.TimeoutSeconds,
		})
		dispatcher = notify.NewDispatcher(cfg.Notify.WebhookURL, cfg.Notify.TimeoutSeconds, logger)
	}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Scorer: scoring.Engine{
			Provider:         provider,
			Thresholds:       r,
			DefaultThreshold: threshold,
			Logger:           logger,
		},
		Notify: dispatcher,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// TaskCreateOptions are parameters for publishing a task.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Description string
	Phase       string
	Price       decimal.Decimal
	Points      int
	LumenReward decimal.Decimal
	Difficulty  domain.Difficulty
	MinLevel    int
	Locked      bool
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if strings.TrimSpace(opts.Phase) == "" {
		return domain.Task{}, errors.New("phase is required")
	}
	if opts.Price.IsNegative() || opts.LumenReward.IsNegative() {
		return domain.Task{}, errors.New("rewards must not be negative")
	}
	if opts.Points < 0 {
		return domain.Task{}, errors.New("points must not be negative")
	}
	if opts.Difficulty == "" {
		opts.Difficulty = domain.DifficultyStandard
	}
	if _, err := domain.ParseDifficulty(string(opts.Difficulty)); err != nil {
		return domain.Task{}, err
	}
	if opts.MinLevel < 1 {
		opts.MinLevel = 1
	}
	if opts.Points == 0 && e.Config != nil {
		opts.Points = e.Config.Rewards.DefaultPoints
	}
	status := domain.TaskAvailable
	if opts.Locked {
		status = domain.TaskLocked
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.nowRFC3339()
	t := domain.Task{
		ID:          id,
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Phase:       strings.TrimSpace(opts.Phase),
		Price:       opts.Price,
		Points:      opts.Points,
		LumenReward: opts.LumenReward,
		Difficulty:  opts.Difficulty,
		MinLevel:    opts.MinLevel,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.EventPayload{
		"phase":  t.Phase,
		"status": string(t.Status),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UnlockTask makes a locked task claimable.
func (e Engine) UnlockTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetTaskTx(ctx, tx, taskID); err != nil {
		return domain.Task{}, err
	}
	n, err := e.Repo.UnlockTask(ctx, tx, taskID, e.nowRFC3339())
	if err != nil {
		return domain.Task{}, err
	}
	if n == 0 {
		return domain.Task{}, ErrTaskNotAvailable
	}
	if err := e.Events.Append(ctx, tx, "task.unlocked", "task", taskID, actorID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// Claim attempts to take an available task for userID. Exactly one of any
// set of simultaneous claimants wins; everyone else gets
// ErrTaskNotAvailable. The winner's claim is durable before Claim returns.
func (e Engine) Claim(ctx context.Context, taskID, userID string) (domain.Task, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Task{}, errors.New("user is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.nowRFC3339()
	if err := e.Repo.EnsureContributor(ctx, tx, userID, now); err != nil {
		return domain.Task{}, fmt.Errorf("ensure contributor: %w", err)
	}
	c, err := e.Repo.GetContributorTx(ctx, tx, userID)
	if err != nil {
		return domain.Task{}, err
	}
	if c.Level < t.MinLevel {
		return domain.Task{}, ErrLevelTooLow
	}
	n, err := e.Repo.ClaimTask(ctx, tx, taskID, userID, now)
	if err != nil {
		return domain.Task{}, fmt.Errorf("claim task: %w", err)
	}
	if n == 0 {
		return domain.Task{}, ErrTaskNotAvailable
	}
	if err := e.Events.Append(ctx, tx, "task.claimed", "task", taskID, userID, events.EventPayload{
		"claimant_id": userID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// Abandon releases a claim the caller holds, returning the task to the pool.
func (e Engine) Abandon(ctx context.Context, taskID, userID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.ClaimantID == nil || *t.ClaimantID != userID {
		return domain.Task{}, ErrNotClaimant
	}
	if t.Status != domain.TaskClaimed {
		return domain.Task{}, ErrTaskNotClaimed
	}
	n, err := e.Repo.ReopenTask(ctx, tx, taskID, e.nowRFC3339())
	if err != nil {
		return domain.Task{}, err
	}
	if n == 0 {
		return domain.Task{}, ErrTaskNotClaimed
	}
	if err := e.Events.Append(ctx, tx, "task.abandoned", "task", taskID, userID, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// ForceReopen returns a claimed task to the pool regardless of who holds the
// claim. Intended for operators clearing stale claims.
func (e Engine) ForceReopen(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status != domain.TaskClaimed {
		return domain.Task{}, ErrTaskNotClaimed
	}
	if _, err := e.Repo.ReopenTask(ctx, tx, taskID, e.nowRFC3339()); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.reopened", "task", taskID, actorID, events.EventPayload{
		"forced": true,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// SubmitOptions are parameters for delivering work against a claimed task.
type SubmitOptions struct {
	TaskID        string
	UserID        string
	Notes         string
	AttachmentRef string
}

// Submit records delivered work against a task the caller has claimed and
// runs the scoring stage. The submission row and the task's move to
// submitted commit together; the verdict is written in a follow-up
// transaction once the scorer returns, so a slow provider never holds a
// database transaction open.
func (e Engine) Submit(ctx context.Context, opts SubmitOptions) (domain.Submission, error) {
	notes := strings.TrimSpace(opts.Notes)
	attachment := strings.TrimSpace(opts.AttachmentRef)
	if notes == "" && attachment == "" {
		return domain.Submission{}, ErrEmptySubmission
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if t.ClaimantID == nil || *t.ClaimantID != opts.UserID {
		return domain.Submission{}, ErrNotClaimant
	}
	open, err := e.Repo.OpenSubmissionExists(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if open {
		return domain.Submission{}, ErrSubmissionOpen
	}
	now := e.nowRFC3339()
	s := domain.Submission{
		ID:        uuid.NewString(),
		TaskID:    opts.TaskID,
		AuthorID:  opts.UserID,
		Notes:     notes,
		Status:    domain.SubmissionPendingAI,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if attachment != "" {
		s.AttachmentRef = &attachment
	}
	if err := e.Repo.InsertSubmission(ctx, tx, s); err != nil {
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	n, err := e.Repo.MarkTaskSubmitted(ctx, tx, opts.TaskID, opts.UserID, now)
	if err != nil {
		return domain.Submission{}, err
	}
	if n == 0 {
		return domain.Submission{}, ErrNotClaimant
	}
	if err := e.Events.Append(ctx, tx, "submission.created", "submission", s.ID, opts.UserID, events.EventPayload{
		"task_id": opts.TaskID,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}

	return e.score(ctx, s, t)
}

// Rescore reruns the scoring stage for a submission that has not yet
// received a human decision.
func (e Engine) Rescore(ctx context.Context, submissionID, actorID string) (domain.Submission, error) {
	s, err := e.Repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if s.Status.Terminal() {
		return domain.Submission{}, ErrAlreadyReviewed
	}
	t, err := e.Repo.GetTask(ctx, s.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	return e.score(ctx, s, t)
}

// score runs the scorer and persists its verdict. The verdict write is
// guarded so a human decision recorded in the meantime always wins.
func (e Engine) score(ctx context.Context, s domain.Submission, t domain.Task) (domain.Submission, error) {
	attachment := ""
	if s.AttachmentRef != nil {
		attachment = *s.AttachmentRef
	}
	res := e.Scorer.Score(ctx, scoring.Input{
		SubmissionID:    s.ID,
		TaskTitle:       t.Title,
		TaskPhase:       t.Phase,
		TaskDescription: t.Description,
		Notes:           s.Notes,
		AttachmentRef:   attachment,
	})
	status := domain.SubmissionAIFlagged
	if res.Approved {
		status = domain.SubmissionAIApproved
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	n, err := e.Repo.SetSubmissionVerdict(ctx, tx, s.ID, res.Score, res.Feedback, status, now)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("record verdict: %w", err)
	}
	if n == 0 {
		return domain.Submission{}, ErrAlreadyReviewed
	}
	if err := e.Events.Append(ctx, tx, "submission.scored", "submission", s.ID, "system", events.EventPayload{
		"score":     res.Score,
		"threshold": res.Threshold,
		"source":    res.Source,
		"verdict":   string(status),
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}

	e.Notify.Notify(ctx, s.AuthorID, notify.KindSubmissionScored,
		fmt.Sprintf("Your submission for %q scored %d/100.", t.Title, res.Score),
		"/submissions/"+s.ID)
	return e.Repo.GetSubmission(ctx, s.ID)
}

// ReviewOptions are parameters for the human decision on a submission.
type ReviewOptions struct {
	SubmissionID string
	ReviewerID   string
	Approve      bool
	Feedback     string
}

// Review records the terminal human decision. Approval settles the task in
// the same transaction: the task moves to validated, a pending payment is
// created, the author's counters and lumen balance are credited and the
// ledger entry is appended. All of it commits or none of it does.
// Rejection returns the task to the pool with its claimant cleared.
func (e Engine) Review(ctx context.Context, opts ReviewOptions) (domain.Submission, error) {
	if strings.TrimSpace(opts.ReviewerID) == "" {
		return domain.Submission{}, errors.New("reviewer is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, opts.SubmissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	if s.Status.Terminal() {
		return domain.Submission{}, ErrAlreadyReviewed
	}
	if !s.Status.Reviewable() {
		return domain.Submission{}, ErrVerdictPending
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, s.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	now := e.nowRFC3339()
	decision := domain.SubmissionHumanRejected
	if opts.Approve {
		decision = domain.SubmissionHumanApproved
	}
	n, err := e.Repo.SetSubmissionDecision(ctx, tx, s.ID, opts.ReviewerID, strings.TrimSpace(opts.Feedback), decision, now)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("record decision: %w", err)
	}
	if n == 0 {
		return domain.Submission{}, ErrAlreadyReviewed
	}

	var payment domain.Payment
	if opts.Approve {
		payment, err = e.settle(ctx, tx, t, s, now)
		if err != nil {
			return domain.Submission{}, err
		}
		if err := e.Events.Append(ctx, tx, "submission.approved", "submission", s.ID, opts.ReviewerID, events.EventPayload{
			"task_id": t.ID,
		}); err != nil {
			return domain.Submission{}, err
		}
	} else {
		if _, err := e.Repo.ReopenTask(ctx, tx, t.ID, now); err != nil {
			return domain.Submission{}, fmt.Errorf("reopen task: %w", err)
		}
		if err := e.Events.Append(ctx, tx, "submission.rejected", "submission", s.ID, opts.ReviewerID, events.EventPayload{
			"task_id": t.ID,
		}); err != nil {
			return domain.Submission{}, err
		}
		if err := e.Events.Append(ctx, tx, "task.reopened", "task", t.ID, opts.ReviewerID, nil); err != nil {
			return domain.Submission{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}

	if opts.Approve {
		e.Notify.Notify(ctx, s.AuthorID, notify.KindSubmissionApproved,
			fmt.Sprintf("Your work on %q was approved. %s %s is on its way.", t.Title, payment.Amount.String(), payment.Method),
			"/payments/"+payment.ID)
	} else {
		e.Notify.Notify(ctx, s.AuthorID, notify.KindSubmissionRejected,
			fmt.Sprintf("Your submission for %q was not accepted and the task is open again.", t.Title),
			"/tasks/"+t.ID)
	}
	return e.Repo.GetSubmission(ctx, s.ID)
}

// settle performs the atomic reward fan-out inside the caller's
// transaction. The conditional move submitted->validated is the idempotency
// gate: a second settlement attempt moves zero rows and aborts before any
// money or points are touched.
func (e Engine) settle(ctx context.Context, tx *sql.Tx, t domain.Task, s domain.Submission, now string) (domain.Payment, error) {
	n, err := e.Repo.ValidateTask(ctx, tx, t.ID, now)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("validate task: %w", err)
	}
	if n == 0 {
		return domain.Payment{}, ErrAlreadySettled
	}
	if err := e.Repo.EnsureContributor(ctx, tx, s.AuthorID, now); err != nil {
		return domain.Payment{}, err
	}
	method := "lumens"
	if e.Config != nil && e.Config.Rewards.Method != "" {
		method = e.Config.Rewards.Method
	}
	p := domain.Payment{
		ID:        uuid.NewString(),
		UserID:    s.AuthorID,
		TaskID:    t.ID,
		Amount:    t.Price,
		Status:    domain.PaymentPending,
		Method:    method,
		CreatedAt: now,
	}
	if err := e.Repo.InsertPayment(ctx, tx, p); err != nil {
		// The UNIQUE(task_id, user_id) constraint is the second settlement
		// guard; hitting it means this task was already paid out.
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return domain.Payment{}, ErrAlreadySettled
		}
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	if err := e.Repo.CreditContributor(ctx, tx, s.AuthorID, t.Points, t.LumenReward, "task_reward", t.ID, now); err != nil {
		return domain.Payment{}, fmt.Errorf("credit contributor: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.validated", "task", t.ID, s.AuthorID, events.EventPayload{
		"submission_id": s.ID,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := e.Events.Append(ctx, tx, "payment.created", "payment", p.ID, "system", events.EventPayload{
		"task_id": t.ID,
		"user_id": s.AuthorID,
		"amount":  p.Amount.String(),
	}); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

// CompletePayment is the payout write-back for a successful transfer.
func (e Engine) CompletePayment(ctx context.Context, paymentID, externalRef, actorID string) (domain.Payment, error) {
	return e.finalizePayment(ctx, paymentID, domain.PaymentCompleted, externalRef, actorID)
}

// FailPayment records a failed transfer; external ref carries the failure
// reference from the payout system.
func (e Engine) FailPayment(ctx context.Context, paymentID, externalRef, actorID string) (domain.Payment, error) {
	return e.finalizePayment(ctx, paymentID, domain.PaymentFailed, externalRef, actorID)
}

func (e Engine) finalizePayment(ctx context.Context, paymentID string, status domain.PaymentStatus, externalRef, actorID string) (domain.Payment, error) {
	p, err := e.Repo.GetPayment(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Payment{}, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	paidAt := ""
	if status == domain.PaymentCompleted {
		paidAt = now
	}
	n, err := e.Repo.SetPaymentOutcome(ctx, tx, paymentID, status, externalRef, paidAt)
	if err != nil {
		return domain.Payment{}, err
	}
	if n == 0 {
		return domain.Payment{}, ErrPaymentFinalized
	}
	if err := e.Events.Append(ctx, tx, "payment."+string(status), "payment", paymentID, actorID, events.EventPayload{
		"external_ref": externalRef,
	}); err != nil {
		return domain.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Payment{}, err
	}
	if status == domain.PaymentCompleted {
		e.Notify.Notify(ctx, p.UserID, notify.KindPaymentCompleted,
			fmt.Sprintf("Payment of %s for task %s completed.", p.Amount.String(), p.TaskID),
			"/payments/"+p.ID)
	}
	return e.Repo.GetPayment(ctx, paymentID)
}

// SetReviewThreshold retunes the AI approval gate. The new value applies to
// the next scoring call; nothing needs a restart.
func (e Engine) SetReviewThreshold(ctx context.Context, value int, actorID string) error {
	if value < 0 || value > 100 {
		return errors.New("threshold must be in [0,100]")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.PutSettingTx(ctx, tx, repo.SettingAIThreshold, strconv.Itoa(value), e.nowRFC3339()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "settings.updated", "setting", repo.SettingAIThreshold, actorID, events.EventPayload{
		"value": value,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RegisterContributor creates the contributor row if needed and optionally
// sets a display name.
func (e Engine) RegisterContributor(ctx context.Context, userID, displayName string) (domain.Contributor, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Contributor{}, errors.New("user is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contributor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureContributor(ctx, tx, userID, e.nowRFC3339()); err != nil {
		return domain.Contributor{}, err
	}
	if name := strings.TrimSpace(displayName); name != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE contributors SET display_name=? WHERE id=?`, name, userID); err != nil {
			return domain.Contributor{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Contributor{}, err
	}
	return e.Repo.GetContributor(ctx, userID)
}

// VerifyLedger recomputes a contributor's transaction log sum and compares
// it to the stored balance.
func (e Engine) VerifyLedger(ctx context.Context, userID string) error {
	c, err := e.Repo.GetContributor(ctx, userID)
	if err != nil {
		return err
	}
	sum, err := e.Repo.LedgerSum(ctx, userID)
	if err != nil {
		return err
	}
	if !sum.Equal(c.Lumens) {
		return fmt.Errorf("ledger mismatch for %s: entries sum to %s, balance is %s", userID, sum.String(), c.Lumens.String())
	}
	return nil
}
