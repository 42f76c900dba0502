// Case document HTTP handlers.
//
// This file exposes read-side endpoints over the extracted case documents:
//   - GET /cases/{id}/documents          (list documents available for context)
//   - GET /cases/{id}/documents/search   (keyword search over extracted text)
//
// Documents are seeded by an external extraction pipeline; this service only
// reads them. Search runs against the in-memory paragraph index built at
// startup, so results may trail very recent document ingests until restart.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lexstream/go-counsel-backend/internal/repo"
	"github.com/lexstream/go-counsel-backend/internal/utils"
)

//
// DTOs
//

// DocumentSummary is one list entry: enough to pick a document as context
// without shipping its full extracted text.
type DocumentSummary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	// Size is the length of the extracted text in bytes.
	Size int `json:"size"`
}

// ListDocumentsResponse wraps the documents of a case.
type ListDocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
}

// DocumentSearchResult is one search hit: the best-matching paragraph of a
// document for the query.
type DocumentSearchResult struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// SearchDocumentsResponse wraps the hits for a document search.
type SearchDocumentsResponse struct {
	Query   string                 `json:"query"`
	Results []DocumentSearchResult `json:"results"`
}

//
// Handlers
//

// ListCaseDocuments godoc
// @ID          listCaseDocuments
// @Summary     List documents in a case
// @Description Returns the documents of a case available as conversation context.
// @Tags        Documents
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Case ID"  example(case-7751)
//
// @Success     200  {object} handlers.ListDocumentsResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid bearer token"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /cases/{id}/documents [get]
func (h *Handlers) ListCaseDocuments(c *gin.Context) {
	caseID := c.Param("id")

	docs, err := repo.ListDocumentsByCase(c.Request.Context(), h.d.DB, caseID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentSummary{
			ID:       d.ID,
			Filename: d.Filename,
			Size:     len(d.ExtractedText),
		})
	}
	ok(c, http.StatusOK, ListDocumentsResponse{Documents: out})
}

// SearchCaseDocuments godoc
// @ID          searchCaseDocuments
// @Summary     Search documents in a case
// @Description Keyword search over the extracted text of a case's documents.
// @Description Returns at most one hit per document: its best-matching paragraph.
// @Tags        Documents
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
// @Param       id             path    string  true  "Case ID"          example(case-7751)
// @Param       q              query   string  true  "Search terms"     example(indemnification clause)
// @Param       limit          query   int     false "Max hits (1-20)"  default(5)
//
// @Success     200  {object} handlers.SearchDocumentsResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing search terms"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid bearer token"
// @Router      /cases/{id}/documents/search [get]
func (h *Handlers) SearchCaseDocuments(c *gin.Context) {
	caseID := c.Param("id")

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}

	limit := utils.AtoiDefault(c.Query("limit"), 5)
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	hits := h.d.Index.Search(caseID, query, limit)
	out := make([]DocumentSearchResult, 0, len(hits))
	for _, r := range hits {
		out = append(out, DocumentSearchResult{
			DocumentID: r.DocumentID,
			Filename:   r.Filename,
			Snippet:    r.Snippet,
			Score:      r.Score,
		})
	}
	ok(c, http.StatusOK, SearchDocumentsResponse{Query: query, Results: out})
}
