package lumenforgesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Lumenforge HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Phase       string  `json:"phase"`
	Price       string  `json:"price"`
	Points      int     `json:"points"`
	LumenReward string  `json:"lumen_reward"`
	Difficulty  string  `json:"difficulty"`
	MinLevel    int     `json:"min_level"`
	Status      string  `json:"status"`
	ClaimantID  *string `json:"claimant_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Submission represents one delivery of work against a task.
type Submission struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	AuthorID         string  `json:"author_id"`
	Notes            string  `json:"notes,omitempty"`
	AttachmentRef    *string `json:"attachment_ref,omitempty"`
	AIScore          *int    `json:"ai_score,omitempty"`
	AIFeedback       string  `json:"ai_feedback,omitempty"`
	Status           string  `json:"status"`
	ReviewerID       *string `json:"reviewer_id,omitempty"`
	ReviewerFeedback string  `json:"reviewer_feedback,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// Payment represents a settlement record.
type Payment struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	TaskID      string  `json:"task_id"`
	Amount      string  `json:"amount"`
	Status      string  `json:"status"`
	Method      string  `json:"method"`
	ExternalRef *string `json:"external_ref,omitempty"`
	PaidAt      *string `json:"paid_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// Contributor represents a contributor profile.
type Contributor struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name,omitempty"`
	Level          int    `json:"level"`
	TasksCompleted int    `json:"tasks_completed"`
	TasksValidated int    `json:"tasks_validated"`
	Points         int    `json:"points"`
	Lumens         string `json:"lumens"`
	CreatedAt      string `json:"created_at"`
}

// LedgerEntry is one row of a contributor's transaction log.
type LedgerEntry struct {
	ID        int64   `json:"id"`
	UserID    string  `json:"user_id"`
	Amount    string  `json:"amount"`
	Kind      string  `json:"kind"`
	TaskID    *string `json:"task_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListTasks returns tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "v0/tasks"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "v0/tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// Claim takes an available task for the authenticated contributor.
func (c *Client) Claim(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/claim", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// Abandon releases a held claim.
func (c *Client) Abandon(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/abandon", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// Submit delivers work for a claimed task and returns the scored submission.
func (c *Client) Submit(ctx context.Context, taskID, notes, attachmentRef string) (Submission, error) {
	body := map[string]any{"notes": notes}
	if attachmentRef != "" {
		body["attachment_ref"] = attachmentRef
	}
	var resp Submission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/tasks/%s/submit", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// Review records the human decision on a submission. Requires the review
// capability.
func (c *Client) Review(ctx context.Context, submissionID string, approve bool, feedback string) (Submission, error) {
	body := map[string]any{"approve": approve, "feedback": feedback}
	var resp Submission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/submissions/%s/review", url.PathEscape(submissionID)), body, &resp)
	return resp, err
}

// ListPayments returns payments, optionally filtered by user and status.
func (c *Client) ListPayments(ctx context.Context, userID, status string) ([]Payment, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("user_id", userID)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "v0/payments"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Payment
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CompletePayment records a successful payout. Requires the payout
// capability.
func (c *Client) CompletePayment(ctx context.Context, paymentID, externalRef string) (Payment, error) {
	body := map[string]any{"external_ref": externalRef}
	var resp Payment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/payments/%s/complete", url.PathEscape(paymentID)), body, &resp)
	return resp, err
}

// Contributor fetches a contributor profile.
func (c *Client) Contributor(ctx context.Context, userID string) (Contributor, error) {
	var resp Contributor
	err := c.do(ctx, http.MethodGet, "v0/contributors/"+url.PathEscape(userID), nil, &resp)
	return resp, err
}

// Ledger returns a contributor's transaction log, newest first.
func (c *Client) Ledger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	endpoint := fmt.Sprintf("v0/contributors/%s/ledger", url.PathEscape(userID))
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var resp []LedgerEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
