// Package services – ContextService
//
// This file implements the ContextService, which assembles case-document
// context for the model prompt. Documents are fetched concurrently with a
// bounded worker count and rendered in request order, each capped to a
// per-document character budget so a single filing cannot crowd out the rest
// of the prompt. Assembly never fails a chat request: missing or unreadable
// documents degrade to placeholder sections.
package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultDocCharBudget caps each document's contribution to the prompt.
	defaultDocCharBudget = 10000
	// defaultFetchWorkers bounds concurrent document loads.
	defaultFetchWorkers = 4

	noDocumentsPlaceholder = "No case documents were provided for this conversation."
	truncatedMarker        = "... [truncated]"
)

// ContextService loads case documents and renders them as prompt context.
type ContextService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// DocCharBudget caps each document body by rune count (0 uses the default).
	DocCharBudget int
	// FetchWorkers bounds concurrent fetches (0 uses the default).
	FetchWorkers int
}

// NewContextService constructs a ContextService with default budgets.
func NewContextService(db *gorm.DB, log zerolog.Logger) *ContextService {
	return &ContextService{
		DB:            db,
		Log:           log,
		DocCharBudget: defaultDocCharBudget,
		FetchWorkers:  defaultFetchWorkers,
	}
}

// Assemble fetches the requested documents concurrently and renders them in
// request order, one header-prefixed section per document. Documents that are
// missing, unreadable, or belong to a different case degrade to placeholder
// sections; Assemble never returns an error and never returns an empty string.
func (s *ContextService) Assemble(ctx context.Context, caseID string, documentIDs []string) string {
	tr := otel.Tracer("services/ContextService")
	ctx, span := tr.Start(ctx, "Assemble",
		trace.WithAttributes(
			attribute.String("case.id", caseID),
			attribute.Int("document.count", len(documentIDs)),
		),
	)
	defer span.End()

	if len(documentIDs) == 0 {
		return noDocumentsPlaceholder
	}

	sections := make([]string, len(documentIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, id := range documentIDs {
		i, id := i, id
		g.Go(func() error {
			sections[i] = s.section(ctx, caseID, id)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes the fan-out.
	_ = g.Wait()

	return strings.Join(sections, "\n\n")
}

// section renders one document, or a placeholder when it cannot be used.
func (s *ContextService) section(ctx context.Context, caseID, id string) string {
	doc, err := repo.GetDocument(ctx, s.DB, id)
	if err != nil {
		s.Log.Warn().Err(err).Str("document_id", id).Msg("document context fetch failed")
		return unavailableSection(id)
	}
	// A document from another case is treated as missing so ids cannot be
	// used to probe across cases.
	if caseID != "" && doc.CaseID != "" && doc.CaseID != caseID {
		s.Log.Warn().Str("document_id", id).Str("case_id", caseID).Msg("document belongs to a different case")
		return unavailableSection(id)
	}

	body := strings.TrimSpace(doc.ExtractedText)
	if body == "" {
		body = "[document has no extracted text]"
	} else {
		body = clipRunes(body, s.budget())
	}
	return fmt.Sprintf("=== Document: %s (ID: %s) ===\n%s", doc.Filename, doc.ID, body)
}

func (s *ContextService) budget() int {
	if s.DocCharBudget > 0 {
		return s.DocCharBudget
	}
	return defaultDocCharBudget
}

func (s *ContextService) workers() int {
	if s.FetchWorkers > 0 {
		return s.FetchWorkers
	}
	return defaultFetchWorkers
}

func unavailableSection(id string) string {
	return fmt.Sprintf("=== Document: unavailable (ID: %s) ===\n[document could not be loaded]", id)
}

// clipRunes truncates s to at most budget runes, appending a marker when
// anything was dropped.
func clipRunes(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	return string([]rune(s)[:budget]) + truncatedMarker
}
