// Package server exposes the contribution pipeline over HTTP. Routing and
// OpenAPI generation are handled by huma on top of chi; authentication is a
// JWT bearer token or an API key resolved against the database.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"lumenforge/internal/domain"
	"lumenforge/internal/engine"
	"lumenforge/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"task_not_available"`
	Message string         `json:"message" example:"task is not available to claim"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Lumenforge API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Lumenforge API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerSubmissions(group, cfg.Engine)
	registerPayments(group, cfg.Engine)
	registerContributors(group, cfg.Engine)
	registerSettings(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps pipeline errors to the HTTP surface. Conflicts cover
// everything that lost a race or replayed a finished operation.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrTaskNotAvailable):
		return newAPIError(http.StatusConflict, "task_not_available", err.Error(), nil)
	case errors.Is(err, engine.ErrTaskNotClaimed):
		return newAPIError(http.StatusConflict, "task_not_claimed", err.Error(), nil)
	case errors.Is(err, engine.ErrSubmissionOpen):
		return newAPIError(http.StatusConflict, "submission_open", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyReviewed):
		return newAPIError(http.StatusConflict, "already_reviewed", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadySettled):
		return newAPIError(http.StatusConflict, "already_settled", err.Error(), nil)
	case errors.Is(err, engine.ErrPaymentFinalized):
		return newAPIError(http.StatusConflict, "payment_finalized", err.Error(), nil)
	case errors.Is(err, engine.ErrVerdictPending):
		return newAPIError(http.StatusConflict, "verdict_pending", err.Error(), nil)
	case errors.Is(err, engine.ErrLevelTooLow):
		return newAPIError(http.StatusForbidden, "level_too_low", err.Error(), nil)
	case errors.Is(err, engine.ErrNotClaimant):
		return newAPIError(http.StatusForbidden, "not_claimant", err.Error(), nil)
	case errors.Is(err, engine.ErrEmptySubmission):
		return newAPIError(http.StatusUnprocessableEntity, "empty_submission", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Publish a task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, authErr := requireCapability(ctx, CapAdmin)
		if authErr != nil {
			return nil, authErr
		}
		price, err := decimal.NewFromString(strings.TrimSpace(input.Body.Price))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid price", nil)
		}
		reward := decimal.Zero
		if input.Body.LumenReward != "" {
			if reward, err = decimal.NewFromString(strings.TrimSpace(input.Body.LumenReward)); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid lumen_reward", nil)
			}
		}
		opts := engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Phase:       input.Body.Phase,
			Price:       price,
			Points:      input.Body.Points,
			LumenReward: reward,
			Difficulty:  domain.Difficulty(input.Body.Difficulty),
			MinLevel:    input.Body.MinLevel,
			Locked:      input.Body.Locked,
			ActorID:     p.UserID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"locked,available,claimed,submitted,validated" required:"false"`
		Phase    string `query:"phase" required:"false"`
		Claimant string `query:"claimant_id" required:"false"`
		Limit    int    `query:"limit" required:"false"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Status:     input.Status,
			Phase:      input.Phase,
			ClaimantID: input.Claimant,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/claim",
		Summary:     "Claim an available task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Claim(ctx, input.TaskID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abandon-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/abandon",
		Summary:     "Release a held claim",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Abandon(ctx, input.TaskID, userID)
		if errors.Is(err, engine.ErrNotClaimant) {
			if p, ok := principalFromContext(ctx); ok && p.Can(CapAdmin) {
				t, err = e.ForceReopen(ctx, input.TaskID, userID)
			}
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlock-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/unlock",
		Summary:     "Make a locked task claimable",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, authErr := requireCapability(ctx, CapAdmin)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UnlockTask(ctx, input.TaskID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-work",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/submit",
		Summary:     "Deliver work for a claimed task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string        `path:"task_id"`
		Body   SubmitRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SubmitOptions{
			TaskID: input.TaskID,
			UserID: userID,
			Notes:  input.Body.Notes,
		}
		if input.Body.AttachmentRef != nil {
			opts.AttachmentRef = *input.Body.AttachmentRef
		}
		s, err := e.Submit(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})
}

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List submissions",
	}, func(ctx context.Context, input *struct {
		TaskID   string `query:"task_id" required:"false"`
		AuthorID string `query:"author_id" required:"false"`
		Status   string `query:"status" enum:"pending_ai,ai_approved,ai_flagged,human_approved,human_rejected" required:"false"`
		Limit    int    `query:"limit" required:"false"`
	}) (*struct {
		Body []SubmissionResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListSubmissions(ctx, repo.SubmissionFilters{
			TaskID:   input.TaskID,
			AuthorID: input.AuthorID,
			Status:   input.Status,
			Limit:    input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SubmissionResponse `json:"body"`
		}{Body: mapSubmissions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}",
		Summary:     "Get submission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubmissionID string `path:"submission_id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.Repo.GetSubmission(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{submission_id}/review",
		Summary:     "Record the human decision",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		SubmissionID string        `path:"submission_id"`
		Body         ReviewRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, authErr := requireCapability(ctx, CapReview)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Review(ctx, engine.ReviewOptions{
			SubmissionID: input.SubmissionID,
			ReviewerID:   p.UserID,
			Approve:      input.Body.Approve,
			Feedback:     input.Body.Feedback,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rescore-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{submission_id}/rescore",
		Summary:     "Rerun the scoring stage",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		SubmissionID string `path:"submission_id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		p, authErr := requireCapability(ctx, CapReview)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Rescore(ctx, input.SubmissionID, p.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})
}

func registerPayments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/payments",
		Summary:     "List payments",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id" required:"false"`
		Status string `query:"status" enum:"pending,completed,failed" required:"false"`
		Limit  int    `query:"limit" required:"false"`
	}) (*struct {
		Body []PaymentResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListPayments(ctx, repo.PaymentFilters{
			UserID: input.UserID,
			Status: input.Status,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PaymentResponse `json:"body"`
		}{Body: mapPayments(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-payment",
		Method:      http.MethodGet,
		Path:        "/payments/{payment_id}",
		Summary:     "Get payment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PaymentID string `path:"payment_id"`
	}) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetPayment(ctx, input.PaymentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/complete",
		Summary:     "Record a successful payout",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		PaymentID string                `path:"payment_id"`
		Body      PaymentOutcomeRequest `json:"body"`
	}) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		pr, authErr := requireCapability(ctx, CapPayout)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CompletePayment(ctx, input.PaymentID, input.Body.ExternalRef, pr.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fail-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/fail",
		Summary:     "Record a failed payout",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		PaymentID string                `path:"payment_id"`
		Body      PaymentOutcomeRequest `json:"body"`
	}) (*struct {
		Body PaymentResponse `json:"body"`
	}, error) {
		pr, authErr := requireCapability(ctx, CapPayout)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.FailPayment(ctx, input.PaymentID, input.Body.ExternalRef, pr.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PaymentResponse `json:"body"`
		}{Body: paymentResponse(p)}, nil
	})
}

func registerContributors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "register-contributor",
		Method:      http.MethodPost,
		Path:        "/contributors",
		Summary:     "Register a contributor",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body RegisterContributorRequest `json:"body"`
	}) (*struct {
		Body ContributorResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := input.Body.ID
		if target == "" {
			target = userID
		}
		if target != userID {
			if _, authErr := requireCapability(ctx, CapAdmin); authErr != nil {
				return nil, authErr
			}
		}
		c, err := e.RegisterContributor(ctx, target, input.Body.DisplayName)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContributorResponse `json:"body"`
		}{Body: contributorResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contributor",
		Method:      http.MethodGet,
		Path:        "/contributors/{user_id}",
		Summary:     "Get contributor profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body ContributorResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetContributor(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ContributorResponse `json:"body"`
		}{Body: contributorResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contributor-ledger",
		Method:      http.MethodGet,
		Path:        "/contributors/{user_id}/ledger",
		Summary:     "List a contributor's ledger entries",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Limit  int    `query:"limit" required:"false"`
	}) (*struct {
		Body []LedgerEntryResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetContributor(ctx, input.UserID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListLedgerEntries(ctx, input.UserID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []LedgerEntryResponse `json:"body"`
		}{Body: mapLedgerEntries(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			UserID       string   `json:"user_id"`
			Capabilities []string `json:"capabilities,omitempty"`
			Source       string   `json:"source"`
		} `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		out := &struct {
			Body struct {
				UserID       string   `json:"user_id"`
				Capabilities []string `json:"capabilities,omitempty"`
				Source       string   `json:"source"`
			} `json:"body"`
		}{}
		out.Body.UserID = p.UserID
		out.Body.Capabilities = p.Capabilities
		out.Body.Source = p.Source
		return out, nil
	})
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-review-threshold",
		Method:      http.MethodGet,
		Path:        "/settings/review-threshold",
		Summary:     "Current AI approval threshold",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ThresholdResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		fallback := 70
		if e.Config != nil && e.Config.Review.AIConfidenceThreshold > 0 {
			fallback = e.Config.Review.AIConfidenceThreshold
		}
		return &struct {
			Body ThresholdResponse `json:"body"`
		}{Body: ThresholdResponse{Value: e.Repo.AIThreshold(ctx, fallback)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-review-threshold",
		Method:      http.MethodPut,
		Path:        "/settings/review-threshold",
		Summary:     "Retune the AI approval threshold",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body PutThresholdRequest `json:"body"`
	}) (*struct {
		Body ThresholdResponse `json:"body"`
	}, error) {
		p, authErr := requireCapability(ctx, CapAdmin)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetReviewThreshold(ctx, input.Body.Value, p.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ThresholdResponse `json:"body"`
		}{Body: ThresholdResponse{Value: input.Body.Value}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" required:"false"`
		Type       string `query:"type" required:"false"`
		EntityKind string `query:"entity_kind" required:"false"`
		EntityID   string `query:"entity_id" required:"false"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := requireCapability(ctx, CapAdmin); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Lumenforge API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.onload = () => {
        window.ui = SwaggerUIBundle({
          url: %q,
          dom_id: "#swagger-ui",
        });
      };
    </script>
  </body>
</html>`, specURL)
}
