package server

import (
	"lumenforge/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Phase       string  `json:"phase"`
	Price       string  `json:"price" example:"25.00"`
	Points      int     `json:"points,omitempty"`
	LumenReward string  `json:"lumen_reward" example:"100"`
	Difficulty  string  `json:"difficulty,omitempty" enum:"starter,standard,advanced,expert"`
	MinLevel    int     `json:"min_level,omitempty"`
	Locked      bool    `json:"locked,omitempty"`
}

type SubmitRequest struct {
	Notes         string  `json:"notes,omitempty"`
	AttachmentRef *string `json:"attachment_ref,omitempty"`
}

type ReviewRequest struct {
	Approve  bool   `json:"approve"`
	Feedback string `json:"feedback,omitempty"`
}

type PaymentOutcomeRequest struct {
	ExternalRef string `json:"external_ref,omitempty"`
}

type RegisterContributorRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

type PutThresholdRequest struct {
	Value int `json:"value" minimum:"0" maximum:"100"`
}

// Response payloads

type TaskResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Phase       string  `json:"phase"`
	Price       string  `json:"price"`
	Points      int     `json:"points"`
	LumenReward string  `json:"lumen_reward"`
	Difficulty  string  `json:"difficulty" enum:"starter,standard,advanced,expert"`
	MinLevel    int     `json:"min_level"`
	Status      string  `json:"status" enum:"locked,available,claimed,submitted,validated"`
	ClaimantID  *string `json:"claimant_id,omitempty"`
	ClaimedAt   *string `json:"claimed_at,omitempty" format:"date-time"`
	ValidatedAt *string `json:"validated_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type SubmissionResponse struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	AuthorID         string  `json:"author_id"`
	Notes            string  `json:"notes,omitempty"`
	AttachmentRef    *string `json:"attachment_ref,omitempty"`
	AIScore          *int    `json:"ai_score,omitempty"`
	AIFeedback       string  `json:"ai_feedback,omitempty"`
	Status           string  `json:"status" enum:"pending_ai,ai_approved,ai_flagged,human_approved,human_rejected"`
	ReviewerID       *string `json:"reviewer_id,omitempty"`
	ReviewerFeedback string  `json:"reviewer_feedback,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type PaymentResponse struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	TaskID      string  `json:"task_id"`
	Amount      string  `json:"amount"`
	Status      string  `json:"status" enum:"pending,completed,failed"`
	Method      string  `json:"method"`
	ExternalRef *string `json:"external_ref,omitempty"`
	PaidAt      *string `json:"paid_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type ContributorResponse struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name,omitempty"`
	Level          int    `json:"level"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksValidated int    `json:"tasks_validated"`
	Points         int    `json:"points"`
	Lumens         string `json:"lumens"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type LedgerEntryResponse struct {
	ID        int64   `json:"id"`
	UserID    string  `json:"user_id"`
	Amount    string  `json:"amount"`
	Kind      string  `json:"kind"`
	TaskID    *string `json:"task_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type ThresholdResponse struct {
	Value int `json:"value"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Mappers

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Phase:       t.Phase,
		Price:       t.Price.String(),
		Points:      t.Points,
		LumenReward: t.LumenReward.String(),
		Difficulty:  string(t.Difficulty),
		MinLevel:    t.MinLevel,
		Status:      string(t.Status),
		ClaimantID:  t.ClaimantID,
		ClaimedAt:   t.ClaimedAt,
		ValidatedAt: t.ValidatedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func submissionResponse(s domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:               s.ID,
		TaskID:           s.TaskID,
		AuthorID:         s.AuthorID,
		Notes:            s.Notes,
		AttachmentRef:    s.AttachmentRef,
		AIScore:          s.AIScore,
		AIFeedback:       s.AIFeedback,
		Status:           string(s.Status),
		ReviewerID:       s.ReviewerID,
		ReviewerFeedback: s.ReviewerFeedback,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func mapSubmissions(items []domain.Submission) []SubmissionResponse {
	res := make([]SubmissionResponse, 0, len(items))
	for _, s := range items {
		res = append(res, submissionResponse(s))
	}
	return res
}

func paymentResponse(p domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		UserID:      p.UserID,
		TaskID:      p.TaskID,
		Amount:      p.Amount.String(),
		Status:      string(p.Status),
		Method:      p.Method,
		ExternalRef: p.ExternalRef,
		PaidAt:      p.PaidAt,
		CreatedAt:   p.CreatedAt,
	}
}

func mapPayments(items []domain.Payment) []PaymentResponse {
	res := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		res = append(res, paymentResponse(p))
	}
	return res
}

func contributorResponse(c domain.Contributor) ContributorResponse {
	return ContributorResponse{
		ID:             c.ID,
		DisplayName:    c.DisplayName,
		Level:          c.Level,
		TasksCompleted: c.TasksCompleted,
		TasksValidated: c.TasksValidated,
		Points:         c.Points,
		Lumens:         c.Lumens.String(),
		CreatedAt:      c.CreatedAt,
	}
}

func mapLedgerEntries(items []domain.LedgerEntry) []LedgerEntryResponse {
	res := make([]LedgerEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, LedgerEntryResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			Amount:    e.Amount.String(),
			Kind:      e.Kind,
			TaskID:    e.TaskID,
			CreatedAt: e.CreatedAt,
		})
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return res
}
