// Chat stream HTTP handler.
//
// This file exposes the core endpoint of the service:
//   - POST /chat/stream  (classify the query, assemble document context, and
//     stream the assistant response as server-sent events)
//
// The handler is the request orchestrator: it validates input, resolves the
// conversation (creating one lazily when the client supplies no id), persists
// the user turn, picks a strategy, dispatches to the strategy responder, and
// finally persists the assistant turn and hands it to the citation verifier.
// Everything after the SSE headers are written communicates through the event
// protocol; transport-level JSON errors are only possible before that point.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/classify"
	"github.com/lexstream/go-counsel-backend/internal/domain"
	"github.com/lexstream/go-counsel-backend/internal/http/middleware"
	"github.com/lexstream/go-counsel-backend/internal/llm"
	"github.com/lexstream/go-counsel-backend/internal/respond"
	"github.com/lexstream/go-counsel-backend/internal/search"
	"github.com/lexstream/go-counsel-backend/internal/services"
	"github.com/lexstream/go-counsel-backend/internal/stream"
)

//
// Service contracts (context-aware)
//

// ConversationService defines conversation lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// Resolve returns the owned conversation for conversationID, or lazily
	// creates one titled from firstUserMsg when conversationID is empty.
	// The second result reports whether a new conversation was created.
	Resolve(ctx context.Context, userID, caseID, conversationID, firstUserMsg string) (*domain.Conversation, bool, error)
	// ListPage returns a page of the user's conversations and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// UpdateTitle renames a conversation that belongs to userID.
	UpdateTitle(ctx context.Context, userID, conversationID, title string) error
}

// MessageService defines message persistence and retrieval operations.
//
// The Save methods never fail the request path: persistence errors are
// logged by the implementation and a nil message is returned.
type MessageService interface {
	// SaveUser persists the user's turn with optional request metadata.
	SaveUser(ctx context.Context, conversationID, content string, metadata map[string]any) *domain.Message
	// SaveAssistant persists the assistant's turn with the serving model id.
	SaveAssistant(ctx context.Context, conversationID, content, model string, metadata map[string]any) *domain.Message
	// ListPage returns a page of messages within an owned conversation.
	ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
}

// FeedbackService defines operations to capture user feedback on messages.
type FeedbackService interface {
	// Leave submits a feedback value (-1 or 1) for messageID by userID.
	Leave(ctx context.Context, userID, messageID string, value int) error
}

// ContextAssembler produces the document context block for a prompt. It
// never fails; missing or unreadable documents degrade to placeholders.
type ContextAssembler interface {
	Assemble(ctx context.Context, caseID string, documentIDs []string) string
}

// QueryClassifier picks the processing strategy for a query. It never fails;
// uncertain inputs classify as complex.
type QueryClassifier interface {
	Classify(ctx context.Context, query string) classify.Strategy
}

// StrategyResponder runs the strategy handler and emits the event stream.
// The returned result carries the accumulated answer even on error so the
// partial content can be persisted.
type StrategyResponder interface {
	Respond(ctx context.Context, req respond.Request, mux *stream.Mux) (respond.Result, error)
}

// VerificationScheduler accepts a persisted assistant message for background
// citation verification. Schedule reports whether the job was accepted.
type VerificationScheduler interface {
	Schedule(conversationID, messageID, content string) bool
}

//
// Handler wiring
//

// Deps carries the collaborators the HTTP layer depends on.
//
// DB is used directly for read-side concerns that have no service (ETag
// stats, idempotency records, document listings). MaxQueryRunes bounds the
// accepted query length (0 disables); ThoughtBufSize and IdempotencyTTL are
// forwarded from configuration.
type Deps struct {
	Conversations ConversationService
	Messages      MessageService
	Feedback      FeedbackService
	Context       ContextAssembler
	Classifier    QueryClassifier
	Responder     StrategyResponder
	Verifier      VerificationScheduler
	Index         search.Index
	DB            *gorm.DB

	MaxQueryRunes  int
	ThoughtBufSize int
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints for chat streaming, conversations,
// feedback, documents, and stats. It depends on abstract service interfaces
// to keep transport concerns separate from business logic.
type Handlers struct {
	d Deps
}

// New constructs a Handlers instance bound to the given dependencies.
func New(d Deps) *Handlers {
	return &Handlers{d: d}
}

// userID extracts the authenticated user id from Gin context (set by the
// auth middleware). If absent, it falls back to "X-User-ID" header (tests
// use it), and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// ChatMessage is one conversational turn supplied by the client.
type ChatMessage struct {
	// ID optionally identifies the turn on the client side.
	ID string `json:"id,omitempty"`
	// Role is one of system, user, assistant.
	Role string `json:"role" example:"user"`
	// Content is the turn text.
	Content string `json:"content" example:"What is adverse possession?"`
}

// PreloadedContext carries a snippet the user highlighted in a document
// analysis view; the assistant should answer about that passage.
type PreloadedContext struct {
	AnalysisItem string `json:"analysisItem,omitempty" example:"Indemnification clause"`
	AnalysisType string `json:"analysisType,omitempty" example:"risk"`
	DocumentText string `json:"documentText,omitempty"`
}

// ChatStreamRequest is the JSON payload for the streaming chat endpoint.
//
// Either Query or a user-role entry in Messages must be non-empty. Messages
// preceding the resolved query are forwarded to the model as history.
type ChatStreamRequest struct {
	Messages           []ChatMessage     `json:"messages,omitempty"`
	CaseID             string            `json:"caseId,omitempty" example:"case-7751"`
	ConversationID     string            `json:"conversationId,omitempty" format:"uuid"`
	DocumentContextIDs []string          `json:"documentContextIds,omitempty"`
	ActiveDocumentID   string            `json:"activeDocumentId,omitempty"`
	Preloaded          *PreloadedContext `json:"preloadedContext,omitempty"`
	Query              string            `json:"query,omitempty" example:"What is the statute of limitations here?"`
	StreamThoughts     bool              `json:"streamThoughts,omitempty"`
}

// resolveQuery returns the query text and the model history. An explicit
// Query field wins; otherwise the last user-role message is the query and
// everything before it becomes history. System turns are carried by the
// system prompt, not the history, so they are dropped here.
func (r *ChatStreamRequest) resolveQuery() (string, []llm.Message) {
	query := strings.TrimSpace(r.Query)
	queryIdx := -1
	if query == "" {
		for i := len(r.Messages) - 1; i >= 0; i-- {
			if strings.EqualFold(r.Messages[i].Role, "user") {
				query = strings.TrimSpace(r.Messages[i].Content)
				queryIdx = i
				break
			}
		}
	}

	var history []llm.Message
	for i, m := range r.Messages {
		if i == queryIdx {
			continue
		}
		role := strings.ToLower(m.Role)
		if role != "user" && role != "assistant" {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}
	return query, history
}

// userMessageMetadata records which documents and preloaded snippet shaped
// this turn, so the stored conversation can be reconstructed faithfully.
func userMessageMetadata(req ChatStreamRequest) map[string]any {
	meta := map[string]any{}
	if len(req.DocumentContextIDs) > 0 {
		meta["document_context_ids"] = req.DocumentContextIDs
	}
	if req.ActiveDocumentID != "" {
		meta["active_document_id"] = req.ActiveDocumentID
	}
	if req.Preloaded != nil && req.Preloaded.AnalysisType != "" {
		meta["preloaded_type"] = req.Preloaded.AnalysisType
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// focusedSnippet renders the preloaded passage for the system prompt.
func focusedSnippet(req ChatStreamRequest) string {
	if req.Preloaded == nil {
		return ""
	}
	text := strings.TrimSpace(req.Preloaded.DocumentText)
	if text == "" {
		return ""
	}
	if item := strings.TrimSpace(req.Preloaded.AnalysisItem); item != "" {
		return item + ": " + text
	}
	return text
}

//
// Handler
//

// ChatStream godoc
// @ID          chatStream
// @Summary     Stream an assistant response
// @Description Classifies the query, assembles case-document context, and streams
// @Description the response as server-sent events: one metadata event, then thought
// @Description and answer events, then exactly one complete or error event.
// @Description A new conversation id is returned in the X-Conversation-ID header.
// @Tags        Chat
// @Accept      json
// @Produce     event-stream
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       body           body    handlers.ChatStreamRequest  true  "Chat payload"
//
// @Success     200  {string}  string  "SSE stream (data: <json> frames)"
// @Header      200  {string}  X-Conversation-ID  "Set when a conversation was created"
// @Failure     400  {object}  handlers.ErrorResponse  "No query derivable or body invalid"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not owned or unknown"
// @Failure     500  {object}  handlers.ErrorResponse  "Conversation could not be resolved"
// @Router      /chat/stream [post]
func (h *Handlers) ChatStream(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	lg := middleware.LoggerFrom(c)

	var req ChatStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rawQuery, history := req.resolveQuery()
	query, err := services.ValidateQuery(rawQuery, h.d.MaxQueryRunes)
	if err != nil {
		if err == services.ErrTooLong {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest,
				fmt.Sprintf("query too long: max %d runes", h.d.MaxQueryRunes))
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required: supply query or a user message")
		return
	}

	conv, created, err := h.d.Conversations.Resolve(ctx, uid, req.CaseID, req.ConversationID, query)
	if err != nil {
		if err == services.ErrConversationNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	if created {
		c.Header("X-Conversation-ID", conv.ID)
	}

	// Persist the user turn. A failed insert is logged by the service and
	// never blocks the response.
	h.d.Messages.SaveUser(ctx, conv.ID, query, userMessageMetadata(req))

	// An explicit lookup request outranks classification.
	strategy := classify.ResearchNeeded
	if !classify.ForceResearch(query) {
		strategy = h.d.Classifier.Classify(ctx, query)
	}

	docCtx := h.d.Context.Assemble(ctx, req.CaseID, req.DocumentContextIDs)

	// From here on the response is an event stream; errors become events.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	w := stream.NewWriter(c.Writer, c.Writer.Flush)
	mux := stream.NewMux(w)
	if h.d.ThoughtBufSize > 0 {
		mux.BufSize = h.d.ThoughtBufSize
	}

	res, streamErr := h.d.Responder.Respond(ctx, respond.Request{
		Strategy:        strategy,
		Query:           query,
		History:         history,
		DocumentContext: docCtx,
		FocusedSnippet:  focusedSnippet(req),
		StreamThoughts:  req.StreamThoughts,
	}, mux)
	if streamErr != nil {
		lg.Warn().Err(streamErr).
			Str("conversation_id", conv.ID).
			Str("strategy", string(strategy)).
			Msg("stream ended early")
		if res.Answer == "" {
			return
		}
	}

	// The request context dies with the client; persistence must not.
	pctx := context.WithoutCancel(ctx)
	meta := map[string]any{"strategy": string(strategy)}
	if len(res.Sources) > 0 {
		meta["sources"] = res.Sources
	}
	if am := h.d.Messages.SaveAssistant(pctx, conv.ID, res.Answer, res.Model, meta); am != nil {
		h.d.Verifier.Schedule(conv.ID, am.ID, am.Content)
	}
}
