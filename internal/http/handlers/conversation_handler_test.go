package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lexstream/go-counsel-backend/internal/domain"
	"github.com/lexstream/go-counsel-backend/internal/repo"
	"github.com/lexstream/go-counsel-backend/internal/services"
)

// ---------- shared harness ----------

// newHandlersDB opens a throwaway in-memory database for handler tests. The
// uuid in the DSN keeps parallel tests from sharing a schema.
func newHandlersDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}, &domain.Feedback{}, &domain.Document{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testConvRepo adapts the repo package's free functions to the service contract.
type testConvRepo struct{}

func (testConvRepo) CreateConversation(ctx context.Context, db *gorm.DB, userID, caseID, title string) (*domain.Conversation, error) {
	return repo.CreateConversation(ctx, db, userID, caseID, title)
}

func (testConvRepo) GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id, userID)
}

func (testConvRepo) UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error {
	return repo.UpdateConversationTitle(ctx, db, id, userID, title)
}

func (testConvRepo) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountConversations(ctx, db, userID)
}

func (testConvRepo) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversationsPage(ctx, db, userID, offset, limit)
}

func newRESTRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/conversations", h.ListConversations)
	r.GET("/api/v1/conversations/:id/messages", h.ListConversationMessages)
	r.PUT("/api/v1/conversations/:id/title", h.UpdateConversationTitle)
	return r
}

// do issues a request as the given user and returns the recorder.
func do(r *gin.Engine, method, target, body, user string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func seedConversation(t *testing.T, db *gorm.DB, userID, caseID, title string, at time.Time) domain.Conversation {
	t.Helper()
	c := domain.Conversation{ID: uuid.NewString(), UserID: userID, CaseID: caseID, Title: title, CreatedAt: at, UpdatedAt: at}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return c
}

func seedMessage(t *testing.T, db *gorm.DB, conversationID, role, content string, at time.Time) domain.Message {
	t.Helper()
	m := domain.Message{ID: uuid.NewString(), ConversationID: conversationID, Role: role, Content: content, CreatedAt: at, UpdatedAt: at}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

// newConversationHarness wires real services over a fresh database.
func newConversationHarness(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := newHandlersDB(t)
	h := New(Deps{
		Conversations: services.NewConversationService(db, testConvRepo{}),
		Messages:      services.NewMessageService(db, zerolog.Nop()),
		DB:            db,
	})
	return db, newRESTRouter(h)
}

// ---------- conversations ----------

func TestListConversations_PagesAndETag(t *testing.T) {
	db, r := newConversationHarness(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seedConversation(t, db, "u1", "case-1", "Older matter", base)
	newer := seedConversation(t, db, "u1", "case-1", "Newer matter", base.Add(time.Hour))
	seedConversation(t, db, "u2", "case-9", "Foreign matter", base)

	rec := do(r, http.MethodGet, "/api/v1/conversations?page=1&page_size=1", "", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"conversations:u1:2:`) {
		t.Errorf("ETag = %q, want owner-scoped weak tag over 2 rows", etag)
	}

	var out ListConversationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Conversations) != 1 || out.Conversations[0].ID != newer.ID {
		t.Errorf("page = %+v, want the newest conversation first", out.Conversations)
	}
	want := Pagination{Page: 1, PageSize: 1, Total: 2, TotalPages: 2, HasNext: true}
	if out.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", out.Pagination, want)
	}

	// Unchanged data replays as 304.
	rec2 := do(r, http.MethodGet, "/api/v1/conversations", "", "u1", map[string]string{"If-None-Match": etag})
	if rec2.Code != http.StatusNotModified {
		t.Fatalf("code = %d, want 304", rec2.Code)
	}
	if rec2.Body.Len() != 0 {
		t.Errorf("304 body = %q, want empty", rec2.Body.String())
	}

	// A new conversation moves the tag, so the stale one misses.
	seedConversation(t, db, "u1", "case-1", "Third matter", base.Add(2*time.Hour))
	rec3 := do(r, http.MethodGet, "/api/v1/conversations", "", "u1", map[string]string{"If-None-Match": etag})
	if rec3.Code != http.StatusOK {
		t.Errorf("code after write = %d, want 200", rec3.Code)
	}
}

func TestListConversations_Failure(t *testing.T) {
	conv := &fakeConversations{
		listPage: func(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
			return nil, 0, errors.New("db gone")
		},
	}
	r := newRESTRouter(New(Deps{Conversations: conv}))

	rec := do(r, http.MethodGet, "/api/v1/conversations", "", "u1", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ErrCodeListFailed) {
		t.Errorf("body = %s, want code %q", rec.Body.String(), ErrCodeListFailed)
	}
}

// ---------- conversation messages ----------

func TestListConversationMessages(t *testing.T) {
	db, r := newConversationHarness(t)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	conv := seedConversation(t, db, "u1", "case-1", "Matter", base)
	seedMessage(t, db, conv.ID, domain.RoleUser, "first question", base.Add(1*time.Second))
	seedMessage(t, db, conv.ID, domain.RoleAssistant, "first answer", base.Add(2*time.Second))
	seedMessage(t, db, conv.ID, domain.RoleUser, "second question", base.Add(3*time.Second))

	{
		// Malformed id -> 400
		rec := do(r, http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", "", "u1", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("malformed id: code = %d, want 400", rec.Code)
		}
	}

	{
		// Unknown conversation -> 404
		rec := do(r, http.MethodGet, "/api/v1/conversations/"+uuid.NewString()+"/messages", "", "u1", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("unknown id: code = %d, want 404", rec.Code)
		}
	}

	{
		// Foreign conversation -> 404, with no ETag that would betray it exists.
		rec := do(r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", "", "u2", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("foreign id: code = %d, want 404", rec.Code)
		}
		if et := rec.Header().Get("ETag"); et != "" {
			t.Errorf("foreign id: ETag = %q, want none", et)
		}
	}

	{
		// Owner reads a page in insertion order, then replays it as 304.
		url := "/api/v1/conversations/" + conv.ID + "/messages?page=1&page_size=2"
		rec := do(r, http.MethodGet, url, "", "u1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("owner: code = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
		}
		var out ListMessagesResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(out.Messages) != 2 || out.Messages[0].Content != "first question" || out.Messages[1].Content != "first answer" {
			t.Errorf("messages = %+v, want the two oldest turns", out.Messages)
		}
		want := Pagination{Page: 1, PageSize: 2, Total: 3, TotalPages: 2, HasNext: true}
		if out.Pagination != want {
			t.Errorf("pagination = %+v, want %+v", out.Pagination, want)
		}

		etag := rec.Header().Get("ETag")
		if !strings.HasPrefix(etag, `W/"messages:`+conv.ID+`:3:`) {
			t.Errorf("ETag = %q, want weak tag over 3 rows", etag)
		}
		rec2 := do(r, http.MethodGet, url, "", "u1", map[string]string{"If-None-Match": etag})
		if rec2.Code != http.StatusNotModified {
			t.Errorf("replay: code = %d, want 304", rec2.Code)
		}
	}
}

// ---------- title updates ----------

func TestUpdateConversationTitle(t *testing.T) {
	db, r := newConversationHarness(t)
	conv := seedConversation(t, db, "u1", "case-1", "Original", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	{
		// Malformed id -> 400
		rec := do(r, http.MethodPut, "/api/v1/conversations/not-a-uuid/title", `{"title":"New"}`, "u1", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("malformed id: code = %d, want 400", rec.Code)
		}
	}

	{
		// Blank title -> 400
		rec := do(r, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/title", `{"title":"   "}`, "u1", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("blank title: code = %d, want 400", rec.Code)
		}
	}

	{
		// Foreign conversation -> 404
		rec := do(r, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/title", `{"title":"Hijacked"}`, "u2", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("foreign id: code = %d, want 404", rec.Code)
		}
	}

	{
		// Owner renames -> 204 and the row changes.
		rec := do(r, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/title", `{"title":"Renamed matter"}`, "u1", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("rename: code = %d, want 204 (body: %s)", rec.Code, rec.Body.String())
		}
		got, err := repo.GetConversation(context.Background(), db, conv.ID, "u1")
		if err != nil {
			t.Fatalf("reload conversation: %v", err)
		}
		if got.Title != "Renamed matter" {
			t.Errorf("title = %q, want %q", got.Title, "Renamed matter")
		}
	}
}

// ---------- pagination helpers ----------

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query    string
		wantPage int
		wantSize int
	}{
		{"", 1, 20},
		{"?page=3&page_size=40", 3, 40},
		{"?page=0&page_size=0", 1, 1},
		{"?page=-2&page_size=101", 1, 100},
		{"?page=abc&page_size=xyz", 1, 20},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/conversations"+tt.query, nil)
		page, size := clampPagination(c)
		if page != tt.wantPage || size != tt.wantSize {
			t.Errorf("clampPagination(%q) = (%d, %d), want (%d, %d)", tt.query, page, size, tt.wantPage, tt.wantSize)
		}
	}
}

func Test_paginationFor(t *testing.T) {
	tests := []struct {
		page, pageSize int
		total          int64
		want           Pagination
	}{
		{1, 20, 0, Pagination{Page: 1, PageSize: 20, Total: 0, TotalPages: 0, HasNext: false}},
		{1, 20, 20, Pagination{Page: 1, PageSize: 20, Total: 20, TotalPages: 1, HasNext: false}},
		{1, 20, 21, Pagination{Page: 1, PageSize: 20, Total: 21, TotalPages: 2, HasNext: true}},
		{2, 20, 21, Pagination{Page: 2, PageSize: 20, Total: 21, TotalPages: 2, HasNext: false}},
	}
	for _, tt := range tests {
		if got := paginationFor(tt.page, tt.pageSize, tt.total); got != tt.want {
			t.Errorf("paginationFor(%d, %d, %d) = %+v, want %+v", tt.page, tt.pageSize, tt.total, got, tt.want)
		}
	}
}
