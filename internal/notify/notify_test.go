package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewDispatcherWithoutURLIsNoop(t *testing.T) {
	d := NewDispatcher("", 0, nil)
	if _, ok := d.(Noop); !ok {
		t.Fatalf("dispatcher = %T, want Noop", d)
	}
	// Must not panic or block.
	d.Notify(context.Background(), "user-1", KindSubmissionScored, "scored", "")
}

func TestWebhookDeliversPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 5, nil)
	d.Notify(context.Background(), "user-7", KindPaymentCompleted, "Payment settled for task T1", "/payments/p1")

	if got.UserID != "user-7" || got.Kind != KindPaymentCompleted {
		t.Fatalf("payload = %+v", got)
	}
	if got.Link != "/payments/p1" {
		t.Fatalf("link = %q", got.Link)
	}
}

func TestWebhookFailureDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	srv.Close() // refuse connections outright

	d := NewDispatcher(srv.URL, 1, nil)
	d.Notify(context.Background(), "user-8", KindTaskReopened, "Task reopened", "")
}
