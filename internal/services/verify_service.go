// Package services – VerifyService
//
// This file implements the VerifyService, which checks legal citations found
// in completed assistant answers against web research, in the background. A
// single worker consumes a bounded queue; each job extracts the citations
// from one persisted answer, verifies the first few, and appends the verdicts
// to the conversation as a system note. Verification is strictly best-effort:
// a full queue drops the job, and failures are logged, never surfaced to the
// requesting client.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/citations"
	"github.com/lexstream/go-counsel-backend/internal/domain"
	"github.com/lexstream/go-counsel-backend/internal/repo"
)

const (
	// defaultVerifyQueue bounds how many answers may wait for verification.
	defaultVerifyQueue = 32
	// defaultVerifyMaxChecks caps how many citations one answer may spend
	// research calls on.
	defaultVerifyMaxChecks = 3
	// defaultVerifyJobTimeout bounds the research time for one answer.
	defaultVerifyJobTimeout = 90 * time.Second
)

// citationVerifications counts verification verdicts by outcome.
var citationVerifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "citation_verifications_total",
		Help: "Citation verification verdicts, by outcome.",
	},
	[]string{"verdict"},
)

func init() {
	prometheus.MustRegister(citationVerifications)
}

// CitationVerifier checks one citation against authoritative sources.
type CitationVerifier interface {
	Verify(ctx context.Context, c citations.Citation) citations.VerificationResult
}

// verifyJob carries one persisted assistant answer through the queue.
type verifyJob struct {
	conversationID string
	messageID      string
	content        string
}

// VerifyService verifies citations from assistant answers asynchronously and
// records the verdicts as a system note in the conversation.
type VerifyService struct {
	DB       *gorm.DB
	Verifier CitationVerifier
	Log      zerolog.Logger

	// MaxChecks caps citations verified per answer (0 uses the default).
	// Set before the first Schedule call.
	MaxChecks int
	// JobTimeout bounds the research time per answer (0 uses the default).
	// Set before the first Schedule call.
	JobTimeout time.Duration
	// OnDone, when set, is called after each job completes with the answer's
	// message id and the number of citations checked. It gives callers an
	// explicit completion signal. Set before the first Schedule call.
	OnDone func(messageID string, checked int)

	jobs chan verifyJob
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewVerifyService constructs a VerifyService and starts its worker.
// queueDepth bounds the number of pending answers (0 uses the default).
// Call Close to stop the worker and drain the queue.
func NewVerifyService(db *gorm.DB, v CitationVerifier, log zerolog.Logger, queueDepth int) *VerifyService {
	if queueDepth <= 0 {
		queueDepth = defaultVerifyQueue
	}
	s := &VerifyService{
		DB:       db,
		Verifier: v,
		Log:      log,
		jobs:     make(chan verifyJob, queueDepth),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule enqueues a persisted assistant answer for verification. It never
// blocks: scheduling onto a full queue, or after Close, drops the job and
// returns false.
func (s *VerifyService) Schedule(conversationID, messageID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.jobs <- verifyJob{conversationID: conversationID, messageID: messageID, content: content}:
		return true
	default:
		s.Log.Warn().Str("message_id", messageID).Msg("verification queue full, dropping job")
		return false
	}
}

// Close stops intake and blocks until all queued jobs have been processed.
// It is safe to call more than once.
func (s *VerifyService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	<-s.done
}

func (s *VerifyService) run() {
	defer close(s.done)
	for j := range s.jobs {
		s.process(j)
	}
}

// process verifies one answer's citations and persists the verdict note.
func (s *VerifyService) process(j verifyJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	found := citations.Extract(j.content)
	checks := found
	if max := s.maxChecks(); len(checks) > max {
		checks = checks[:max]
	}

	results := make([]citations.VerificationResult, 0, len(checks))
	for _, c := range checks {
		res := s.Verifier.Verify(ctx, c)
		citationVerifications.WithLabelValues(verdictLabel(res)).Inc()
		results = append(results, res)
	}

	if note := citations.FormatNote(results); note != "" {
		meta := map[string]any{
			"kind":              "citation_verification",
			"answer_message_id": j.messageID,
			"citations_found":   len(found),
		}
		_, err := repo.CreateMessage(s.DB.WithContext(ctx), repo.NewMessage{
			ConversationID: j.conversationID,
			Role:           domain.RoleSystem,
			Content:        note,
			Metadata:       meta,
		})
		if err != nil {
			s.Log.Error().Err(err).Str("conversation_id", j.conversationID).Msg("persist verification note failed")
		}
	}

	if s.OnDone != nil {
		s.OnDone(j.messageID, len(results))
	}
}

func (s *VerifyService) maxChecks() int {
	if s.MaxChecks > 0 {
		return s.MaxChecks
	}
	return defaultVerifyMaxChecks
}

func (s *VerifyService) timeout() time.Duration {
	if s.JobTimeout > 0 {
		return s.JobTimeout
	}
	return defaultVerifyJobTimeout
}

func verdictLabel(r citations.VerificationResult) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Verified:
		return "verified"
	default:
		return "unverified"
	}
}
