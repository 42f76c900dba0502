package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexstream/go-counsel-backend/internal/http/middleware"
	"github.com/lexstream/go-counsel-backend/internal/repo"
	"github.com/lexstream/go-counsel-backend/internal/services"
)

type stubFeedback struct {
	calls int
	leave func(ctx context.Context, userID, messageID string, value int) error
}

func (s *stubFeedback) Leave(ctx context.Context, userID, messageID string, value int) error {
	s.calls++
	if s.leave != nil {
		return s.leave(ctx, userID, messageID, value)
	}
	return nil
}

func newFeedbackRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/messages/:id/feedback",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil),
		h.LeaveFeedback)
	return r
}

func TestLeaveFeedback_PayloadValidation(t *testing.T) {
	fb := &stubFeedback{}
	r := newFeedbackRouter(New(Deps{Feedback: fb}))
	target := "/api/v1/messages/" + uuid.NewString() + "/feedback"

	for _, body := range []string{`{`, `{}`, `{"value":0}`, `{"value":2}`, `{"value":"up"}`} {
		rec := do(r, http.MethodPost, target, body, "u1", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: code = %d, want 400", body, rec.Code)
		}
	}
	if fb.calls != 0 {
		t.Errorf("service called %d times for invalid payloads, want 0", fb.calls)
	}
}

func TestLeaveFeedback_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"unknown message", services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"invalid value", services.ErrInvalidFeedback, http.StatusBadRequest, ErrCodeBadRequest},
		{"not allowed", services.ErrForbiddenFeedback, http.StatusForbidden, ErrCodeForbidden},
		{"already rated", services.ErrDuplicateFeedback, http.StatusConflict, ErrCodeConflict},
		{"backend failure", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &stubFeedback{leave: func(ctx context.Context, userID, messageID string, value int) error {
				return tt.svcErr
			}}
			r := newFeedbackRouter(New(Deps{Feedback: fb}))

			rec := do(r, http.MethodPost, "/api/v1/messages/"+uuid.NewString()+"/feedback", `{"value":1}`, "u1", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantStatus)
			}
			var out ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if out.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", out.Code, tt.wantCode)
			}
		})
	}
}

func TestLeaveFeedback_Success(t *testing.T) {
	var gotUser, gotMessage string
	var gotValue int
	fb := &stubFeedback{leave: func(ctx context.Context, userID, messageID string, value int) error {
		gotUser, gotMessage, gotValue = userID, messageID, value
		return nil
	}}
	r := newFeedbackRouter(New(Deps{Feedback: fb}))

	msgID := uuid.NewString()
	rec := do(r, http.MethodPost, "/api/v1/messages/"+msgID+"/feedback", `{"value":-1}`, "u1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d, want 204 (body: %s)", rec.Code, rec.Body.String())
	}
	if gotUser != "u1" || gotMessage != msgID || gotValue != -1 {
		t.Errorf("service got (%q, %q, %d)", gotUser, gotMessage, gotValue)
	}
	if rec.Header().Get("Idempotency-Replayed") != "" {
		t.Errorf("Idempotency-Replayed set on a first submission")
	}
}

func TestLeaveFeedback_IdempotentReplay(t *testing.T) {
	db := newHandlersDB(t)
	fb := &stubFeedback{}
	r := newFeedbackRouter(New(Deps{Feedback: fb, DB: db, IdempotencyTTL: time.Hour}))

	msgID := uuid.NewString()
	target := "/api/v1/messages/" + msgID + "/feedback"
	key := map[string]string{"Idempotency-Key": "retry-1"}

	{
		// First submission goes through and records the key.
		rec := do(r, http.MethodPost, target, `{"value":1}`, "u1", key)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("first: code = %d, want 204 (body: %s)", rec.Code, rec.Body.String())
		}
		if fb.calls != 1 {
			t.Fatalf("first: service calls = %d, want 1", fb.calls)
		}
		if rec.Header().Get("Idempotency-Replayed") != "" {
			t.Errorf("first: Idempotency-Replayed set")
		}
		stored, err := repo.GetIdempotency(context.Background(), db, "u1", msgID, "retry-1", time.Now().UTC())
		if err != nil {
			t.Fatalf("first: idempotency record not stored: %v", err)
		}
		if stored.Status != http.StatusNoContent {
			t.Errorf("first: stored status = %d, want 204", stored.Status)
		}
	}

	{
		// Same user, message, and key replays without reaching the service.
		rec := do(r, http.MethodPost, target, `{"value":1}`, "u1", key)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("replay: code = %d, want 204", rec.Code)
		}
		if fb.calls != 1 {
			t.Errorf("replay: service calls = %d, want still 1", fb.calls)
		}
		if rec.Header().Get("Idempotency-Replayed") != "true" {
			t.Errorf("replay: Idempotency-Replayed = %q, want true", rec.Header().Get("Idempotency-Replayed"))
		}
	}

	{
		// A different key is a fresh attempt.
		rec := do(r, http.MethodPost, target, `{"value":1}`, "u1", map[string]string{"Idempotency-Key": "retry-2"})
		if rec.Code != http.StatusNoContent {
			t.Fatalf("new key: code = %d, want 204", rec.Code)
		}
		if fb.calls != 2 {
			t.Errorf("new key: service calls = %d, want 2", fb.calls)
		}
	}

	{
		// Another user reusing the key is not a replay.
		rec := do(r, http.MethodPost, target, `{"value":1}`, "u2", key)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("other user: code = %d, want 204", rec.Code)
		}
		if fb.calls != 3 {
			t.Errorf("other user: service calls = %d, want 3", fb.calls)
		}
	}

	{
		// Keys the validator rejects never reach the handler.
		rec := do(r, http.MethodPost, target, `{"value":1}`, "u1", map[string]string{"Idempotency-Key": "bad key!"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("bad key: code = %d, want 400", rec.Code)
		}
		if fb.calls != 3 {
			t.Errorf("bad key: service calls = %d, want still 3", fb.calls)
		}
	}
}
