package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lumenforge/internal/config"
	"lumenforge/internal/db"
	"lumenforge/internal/domain"
	"lumenforge/internal/engine"
	"lumenforge/internal/migrate"
	"lumenforge/internal/repo"
	"lumenforge/internal/scoring"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("studio-1")
	eng := engine.New(conn, cfg, nil)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

// stubScorer forces a verdict so tests can steer the pipeline.
type stubScorer struct {
	score    int
	approved bool
}

func (s stubScorer) Score(context.Context, scoring.Input) scoring.Result {
	return scoring.Result{Score: s.score, Feedback: "stub verdict", Approved: s.approved, Threshold: 70, Source: scoring.SourceFallback}
}

func mustCreateTask(t *testing.T, env testEnv, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.Title == "" {
		opts.Title = "Storyboard the opening sequence"
	}
	if opts.Phase == "" {
		opts.Phase = "pre-production"
	}
	if opts.Price.IsZero() {
		opts.Price = decimal.NewFromInt(25)
	}
	if opts.LumenReward.IsZero() {
		opts.LumenReward = decimal.NewFromInt(100)
	}
	if opts.Points == 0 {
		opts.Points = 10
	}
	opts.ActorID = "producer-1"
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func mustSubmit(t *testing.T, env testEnv, taskID, userID string) domain.Submission {
	t.Helper()
	s, err := env.Engine.Submit(env.Ctx, engine.SubmitOptions{
		TaskID: taskID,
		UserID: userID,
		Notes:  "Completed all twelve frames with camera direction and lighting notes per the brief.",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return s
}

func TestClaimMutualExclusion(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	const contenders = 8
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Claim(env.Ctx, task.ID, "artist-"+string(rune('a'+i)))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, engine.ErrTaskNotAvailable):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskClaimed || got.ClaimantID == nil {
		t.Fatalf("task after race: status=%s claimant=%v", got.Status, got.ClaimantID)
	}
}

func TestClaimLevelGate(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{MinLevel: 3, Difficulty: domain.DifficultyAdvanced})

	if _, err := env.Engine.RegisterContributor(env.Ctx, "artist-1", "Rookie"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); !errors.Is(err, engine.ErrLevelTooLow) {
		t.Fatalf("claim err = %v, want ErrLevelTooLow", err)
	}
	// The refusal must not disturb the task.
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.Status != domain.TaskAvailable {
		t.Fatalf("task status = %s after refused claim", got.Status)
	}

	if err := env.Engine.Repo.SetContributorLevel(env.Ctx, "artist-1", 3); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatalf("claim at sufficient level: %v", err)
	}
}

func TestClaimLockedTask(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{Locked: true})

	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); !errors.Is(err, engine.ErrTaskNotAvailable) {
		t.Fatalf("claim err = %v, want ErrTaskNotAvailable", err)
	}
	if _, err := env.Engine.UnlockTask(env.Ctx, task.ID, "producer-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatalf("claim after unlock: %v", err)
	}
}

func TestAbandonReturnsTaskToPool(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-2"); !errors.Is(err, engine.ErrTaskNotAvailable) {
		t.Fatalf("second claim err = %v, want ErrTaskNotAvailable", err)
	}
	if _, err := env.Engine.Abandon(env.Ctx, task.ID, "artist-2"); !errors.Is(err, engine.ErrNotClaimant) {
		t.Fatalf("abandon by non-claimant err = %v, want ErrNotClaimant", err)
	}

	got, err := env.Engine.Abandon(env.Ctx, task.ID, "artist-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskAvailable || got.ClaimantID != nil {
		t.Fatalf("abandoned task: status=%s claimant=%v", got.Status, got.ClaimantID)
	}
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-2"); err != nil {
		t.Fatalf("reclaim after abandon: %v", err)
	}
}

func TestForceReopenClearsStaleClaim(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.ForceReopen(env.Ctx, task.ID, "producer-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskAvailable || got.ClaimantID != nil {
		t.Fatalf("reopened task: status=%s claimant=%v", got.Status, got.ClaimantID)
	}
	if _, err := env.Engine.ForceReopen(env.Ctx, task.ID, "producer-1"); !errors.Is(err, engine.ErrTaskNotClaimed) {
		t.Fatalf("reopen of available task err = %v, want ErrTaskNotClaimed", err)
	}
}

func TestSubmitGuards(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.Submit(env.Ctx, engine.SubmitOptions{TaskID: task.ID, UserID: "artist-2", Notes: "mine now"}); !errors.Is(err, engine.ErrNotClaimant) {
		t.Fatalf("submit by non-claimant err = %v, want ErrNotClaimant", err)
	}
	if _, err := env.Engine.Submit(env.Ctx, engine.SubmitOptions{TaskID: task.ID, UserID: "artist-1"}); !errors.Is(err, engine.ErrEmptySubmission) {
		t.Fatalf("empty submit err = %v, want ErrEmptySubmission", err)
	}
}

func TestSubmitScoresAndReviewSettles(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Scorer = stubScorer{score: 85, approved: true}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{
		Price:       decimal.RequireFromString("42.50"),
		Points:      15,
		LumenReward: decimal.NewFromInt(120),
	})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	sub := mustSubmit(t, env, task.ID, "artist-1")
	if sub.Status != domain.SubmissionAIApproved {
		t.Fatalf("post-score status = %s, want ai_approved", sub.Status)
	}
	if sub.AIScore == nil || *sub.AIScore != 85 {
		t.Fatalf("ai score = %v, want 85", sub.AIScore)
	}
	gotTask, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if gotTask.Status != domain.TaskSubmitted {
		t.Fatalf("task status = %s, want submitted", gotTask.Status)
	}

	reviewed, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{
		SubmissionID: sub.ID,
		ReviewerID:   "director-1",
		Approve:      true,
		Feedback:     "Ship it.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != domain.SubmissionHumanApproved {
		t.Fatalf("reviewed status = %s", reviewed.Status)
	}

	gotTask, _ = env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if gotTask.Status != domain.TaskValidated || gotTask.ValidatedAt == nil {
		t.Fatalf("task after settle: status=%s validated_at=%v", gotTask.Status, gotTask.ValidatedAt)
	}

	payment, err := env.Engine.Repo.GetPaymentByTask(env.Ctx, task.ID, "artist-1")
	if err != nil {
		t.Fatalf("payment lookup: %v", err)
	}
	if payment.Status != domain.PaymentPending {
		t.Fatalf("payment status = %s, want pending", payment.Status)
	}
	if !payment.Amount.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("payment amount = %s", payment.Amount.String())
	}

	c, err := env.Engine.Repo.GetContributor(env.Ctx, "artist-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Points != 15 || c.TasksCompleted != 1 || c.TasksValidated != 1 {
		t.Fatalf("contributor counters = %+v", c)
	}
	if !c.Lumens.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("lumen balance = %s, want 120", c.Lumens.String())
	}
	if err := env.Engine.VerifyLedger(env.Ctx, "artist-1"); err != nil {
		t.Fatalf("ledger consistency: %v", err)
	}
}

func TestReviewRejectReopensTask(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Scorer = stubScorer{score: 55, approved: false}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	sub := mustSubmit(t, env, task.ID, "artist-1")
	if sub.Status != domain.SubmissionAIFlagged {
		t.Fatalf("flagged submission status = %s", sub.Status)
	}

	reviewed, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{
		SubmissionID: sub.ID,
		ReviewerID:   "director-1",
		Approve:      false,
		Feedback:     "Framing is off brief, please revisit.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != domain.SubmissionHumanRejected {
		t.Fatalf("reviewed status = %s", reviewed.Status)
	}

	gotTask, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if gotTask.Status != domain.TaskAvailable || gotTask.ClaimantID != nil {
		t.Fatalf("task after reject: status=%s claimant=%v", gotTask.Status, gotTask.ClaimantID)
	}
	if _, err := env.Engine.Repo.GetPaymentByTask(env.Ctx, task.ID, "artist-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("payment after reject = %v, want ErrNotFound", err)
	}
	c, _ := env.Engine.Repo.GetContributor(env.Ctx, "artist-1")
	if !c.Lumens.IsZero() || c.Points != 0 {
		t.Fatalf("rejected contribution credited: %+v", c)
	}
	// A second claimant can pick the reopened task up.
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-2"); err != nil {
		t.Fatalf("claim reopened task: %v", err)
	}
}

func TestHumanApprovalOverridesFlaggedVerdict(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Scorer = stubScorer{score: 40, approved: false}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	sub := mustSubmit(t, env, task.ID, "artist-1")
	if sub.Status != domain.SubmissionAIFlagged {
		t.Fatalf("submission status = %s, want ai_flagged", sub.Status)
	}

	// The flag is advisory; the reviewer's approval settles anyway.
	reviewed, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{
		SubmissionID: sub.ID,
		ReviewerID:   "director-1",
		Approve:      true,
		Feedback:     "Score undersells it, the staging is exactly right.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != domain.SubmissionHumanApproved {
		t.Fatalf("reviewed status = %s", reviewed.Status)
	}

	gotTask, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if gotTask.Status != domain.TaskValidated || gotTask.ValidatedAt == nil {
		t.Fatalf("task after settle: status=%s validated_at=%v", gotTask.Status, gotTask.ValidatedAt)
	}
	payment, err := env.Engine.Repo.GetPaymentByTask(env.Ctx, task.ID, "artist-1")
	if err != nil {
		t.Fatalf("payment lookup: %v", err)
	}
	if payment.Status != domain.PaymentPending || !payment.Amount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("payment = %s %s", payment.Status, payment.Amount.String())
	}
	c, err := env.Engine.Repo.GetContributor(env.Ctx, "artist-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.TasksValidated != 1 || !c.Lumens.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("contributor after settle: %+v", c)
	}
	entries, err := env.Engine.Repo.ListLedgerEntries(env.Ctx, "artist-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	// The entry carries the engine clock, not wall time.
	if entries[0].CreatedAt != "2025-06-01T12:00:00Z" {
		t.Fatalf("ledger entry created_at = %s", entries[0].CreatedAt)
	}
	if err := env.Engine.VerifyLedger(env.Ctx, "artist-1"); err != nil {
		t.Fatalf("ledger consistency: %v", err)
	}
}

func TestReviewIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Scorer = stubScorer{score: 90, approved: true}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	sub := mustSubmit(t, env, task.ID, "artist-1")
	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: sub.ID, ReviewerID: "director-1", Approve: true}); err != nil {
		t.Fatal(err)
	}

	// Replays, approving or rejecting, must refuse without touching state.
	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: sub.ID, ReviewerID: "director-1", Approve: true}); !errors.Is(err, engine.ErrAlreadyReviewed) {
		t.Fatalf("replay approve err = %v, want ErrAlreadyReviewed", err)
	}
	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: sub.ID, ReviewerID: "director-2", Approve: false}); !errors.Is(err, engine.ErrAlreadyReviewed) {
		t.Fatalf("replay reject err = %v, want ErrAlreadyReviewed", err)
	}

	c, _ := env.Engine.Repo.GetContributor(env.Ctx, "artist-1")
	if c.TasksValidated != 1 {
		t.Fatalf("tasks_validated = %d after replayed reviews, want 1", c.TasksValidated)
	}
	if err := env.Engine.VerifyLedger(env.Ctx, "artist-1"); err != nil {
		t.Fatalf("ledger consistency: %v", err)
	}
}

func TestReviewRequiresVerdict(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}

	// Plant a submission that never went through scoring.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	now := "2025-06-01T12:00:00Z"
	pending := domain.Submission{
		ID: "sub-unscored", TaskID: task.ID, AuthorID: "artist-1",
		Notes: "raw upload", Status: domain.SubmissionPendingAI,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := env.Engine.Repo.InsertSubmission(env.Ctx, tx, pending); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: "sub-unscored", ReviewerID: "director-1", Approve: true}); !errors.Is(err, engine.ErrVerdictPending) {
		t.Fatalf("review err = %v, want ErrVerdictPending", err)
	}
}

func TestSettlementGuardAgainstSecondApproval(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Scorer = stubScorer{score: 90, approved: true}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	first := mustSubmit(t, env, task.ID, "artist-1")
	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: first.ID, ReviewerID: "director-1", Approve: true}); err != nil {
		t.Fatal(err)
	}

	// A stray scored submission for the already-settled task must not be
	// approvable into a second payout.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	now := "2025-06-01T12:00:00Z"
	stray := domain.Submission{
		ID: "sub-stray", TaskID: task.ID, AuthorID: "artist-1",
		Notes: "duplicate delivery", Status: domain.SubmissionAIApproved,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := env.Engine.Repo.InsertSubmission(env.Ctx, tx, stray); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: "sub-stray", ReviewerID: "director-2", Approve: true}); !errors.Is(err, engine.ErrAlreadySettled) {
		t.Fatalf("second settlement err = %v, want ErrAlreadySettled", err)
	}
	c, _ := env.Engine.Repo.GetContributor(env.Ctx, "artist-1")
	if c.TasksValidated != 1 {
		t.Fatalf("tasks_validated = %d, want 1", c.TasksValidated)
	}
	if err := env.Engine.VerifyLedger(env.Ctx, "artist-1"); err != nil {
		t.Fatalf("ledger consistency: %v", err)
	}
}

func TestSubmitUsesDeterministicFallback(t *testing.T) {
	env := newTestEnv(t)
	// No scoring provider configured: the deterministic scorer decides.
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	sub := mustSubmit(t, env, task.ID, "artist-1")
	if sub.AIScore == nil {
		t.Fatal("fallback produced no score")
	}
	if *sub.AIScore < 0 || *sub.AIScore > 100 {
		t.Fatalf("score %d out of range", *sub.AIScore)
	}
	wantApproved := *sub.AIScore >= 70
	gotApproved := sub.Status == domain.SubmissionAIApproved
	if wantApproved != gotApproved {
		t.Fatalf("status %s inconsistent with score %d at threshold 70", sub.Status, *sub.AIScore)
	}
}

func TestThresholdRetunesWithoutRestart(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.SetReviewThreshold(env.Ctx, 100, "admin-1"); err != nil {
		t.Fatal(err)
	}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	// Notes long enough to be valid yet short of every bonus, so the
	// fallback tops out at 95 and can never clear a threshold of 100.
	sub, err := env.Engine.Submit(env.Ctx, engine.SubmitOptions{
		TaskID: task.ID,
		UserID: "artist-1",
		Notes:  "First pass render attached for review.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != domain.SubmissionAIFlagged {
		t.Fatalf("status = %s at threshold 100, want ai_flagged", sub.Status)
	}

	if err := env.Engine.SetReviewThreshold(env.Ctx, 0, "admin-1"); err != nil {
		t.Fatal(err)
	}
	rescored, err := env.Engine.Rescore(env.Ctx, sub.ID, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if rescored.Status != domain.SubmissionAIApproved {
		t.Fatalf("status = %s at threshold 0, want ai_approved", rescored.Status)
	}
}

func TestPaymentWriteBack(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Scorer = stubScorer{score: 90, approved: true}
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	if _, err := env.Engine.Claim(env.Ctx, task.ID, "artist-1"); err != nil {
		t.Fatal(err)
	}
	sub := mustSubmit(t, env, task.ID, "artist-1")
	if _, err := env.Engine.Review(env.Ctx, engine.ReviewOptions{SubmissionID: sub.ID, ReviewerID: "director-1", Approve: true}); err != nil {
		t.Fatal(err)
	}
	payment, err := env.Engine.Repo.GetPaymentByTask(env.Ctx, task.ID, "artist-1")
	if err != nil {
		t.Fatal(err)
	}

	done, err := env.Engine.CompletePayment(env.Ctx, payment.ID, "tx-9f3a", "payout-bot")
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != domain.PaymentCompleted || done.PaidAt == nil || done.ExternalRef == nil {
		t.Fatalf("completed payment = %+v", done)
	}
	if _, err := env.Engine.CompletePayment(env.Ctx, payment.ID, "tx-dup", "payout-bot"); !errors.Is(err, engine.ErrPaymentFinalized) {
		t.Fatalf("replay err = %v, want ErrPaymentFinalized", err)
	}
	if _, err := env.Engine.FailPayment(env.Ctx, payment.ID, "late failure", "payout-bot"); !errors.Is(err, engine.ErrPaymentFinalized) {
		t.Fatalf("fail-after-complete err = %v, want ErrPaymentFinalized", err)
	}
}
