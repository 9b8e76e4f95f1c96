package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaskStatus is the closed set of task lifecycle states. Transitions are
// guarded by conditional updates in the repo; an unknown status never
// enters the system past ParseTaskStatus.
type TaskStatus string

const (
	TaskLocked    TaskStatus = "locked"
	TaskAvailable TaskStatus = "available"
	TaskClaimed   TaskStatus = "claimed"
	TaskSubmitted TaskStatus = "submitted"
	TaskValidated TaskStatus = "validated"
)

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskLocked, TaskAvailable, TaskClaimed, TaskSubmitted, TaskValidated:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// SubmissionStatus covers the two-stage review: AI verdict first, then a
// terminal human decision. human_approved and human_rejected are immutable.
type SubmissionStatus string

const (
	SubmissionPendingAI     SubmissionStatus = "pending_ai"
	SubmissionAIApproved    SubmissionStatus = "ai_approved"
	SubmissionAIFlagged     SubmissionStatus = "ai_flagged"
	SubmissionHumanApproved SubmissionStatus = "human_approved"
	SubmissionHumanRejected SubmissionStatus = "human_rejected"
)

func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch SubmissionStatus(s) {
	case SubmissionPendingAI, SubmissionAIApproved, SubmissionAIFlagged,
		SubmissionHumanApproved, SubmissionHumanRejected:
		return SubmissionStatus(s), nil
	}
	return "", fmt.Errorf("unknown submission status %q", s)
}

// Terminal reports whether the submission has received its human decision.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionHumanApproved || s == SubmissionHumanRejected
}

// Reviewable reports whether a human decision is allowed: the AI stage must
// have produced a verdict and no human decision may exist yet.
func (s SubmissionStatus) Reviewable() bool {
	return s == SubmissionAIApproved || s == SubmissionAIFlagged
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

type Difficulty string

const (
	DifficultyStarter  Difficulty = "starter"
	DifficultyStandard Difficulty = "standard"
	DifficultyAdvanced Difficulty = "advanced"
	DifficultyExpert   Difficulty = "expert"
)

func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case DifficultyStarter, DifficultyStandard, DifficultyAdvanced, DifficultyExpert:
		return Difficulty(s), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Task is a unit of paid contributor work belonging to a production phase.
// Price, Points and LumenReward are three independently configured rewards;
// none is derived from another.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Phase       string          `json:"phase"`
	Price       decimal.Decimal `json:"price"`
	Points      int             `json:"points"`
	LumenReward decimal.Decimal `json:"lumen_reward"`
	Difficulty  Difficulty      `json:"difficulty"`
	MinLevel    int             `json:"min_level"`
	Status      TaskStatus      `json:"status" enum:"locked,available,claimed,submitted,validated"`
	ClaimantID  *string         `json:"claimant_id,omitempty"`
	ClaimedAt   *string         `json:"claimed_at,omitempty" format:"date-time"`
	ValidatedAt *string         `json:"validated_at,omitempty" format:"date-time"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

// Submission is one attempt by a claimant to deliver a task.
type Submission struct {
	ID               string           `json:"id"`
	TaskID           string           `json:"task_id"`
	AuthorID         string           `json:"author_id"`
	Notes            string           `json:"notes,omitempty"`
	AttachmentRef    *string          `json:"attachment_ref,omitempty"`
	AIScore          *int             `json:"ai_score,omitempty"`
	AIFeedback       string           `json:"ai_feedback,omitempty"`
	Status           SubmissionStatus `json:"status" enum:"pending_ai,ai_approved,ai_flagged,human_approved,human_rejected"`
	ReviewerID       *string          `json:"reviewer_id,omitempty"`
	ReviewerFeedback string           `json:"reviewer_feedback,omitempty"`
	CreatedAt        string           `json:"created_at" format:"date-time"`
	UpdatedAt        string           `json:"updated_at" format:"date-time"`
}

// Payment is the settlement record owed to a contributor for a validated
// task. The pipeline creates it pending; the payout system owns everything
// after that.
type Payment struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	TaskID      string          `json:"task_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      PaymentStatus   `json:"status" enum:"pending,completed,failed"`
	Method      string          `json:"method"`
	ExternalRef *string         `json:"external_ref,omitempty"`
	PaidAt      *string         `json:"paid_at,omitempty" format:"date-time"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
}

// Contributor carries the per-user cumulative counters and the spendable
// lumen balance. The balance only moves together with a ledger entry.
type Contributor struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"display_name,omitempty"`
	Level          int             `json:"level"`
	TasksCompleted int             `json:"tasks_completed"`
	TasksValidated int             `json:"tasks_validated"`
	Points         int             `json:"points"`
	Lumens         decimal.Decimal `json:"lumens"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
}

// LedgerEntry is one immutable row of the contributor's transaction log.
type LedgerEntry struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind"`
	TaskID    *string         `json:"task_id,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
