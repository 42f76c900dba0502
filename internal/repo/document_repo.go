// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read-side repository functions for the
// Document model: the extraction pipeline writes these rows out of band, the
// assistant only ever reads them.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/domain"
)

// GetDocument fetches a single document by its ID. Returns ErrNotFound when
// the row does not exist.
func GetDocument(ctx context.Context, db *gorm.DB, id string) (*domain.Document, error) {
	var d domain.Document
	if err := db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocumentsByCase returns all documents attached to a case, most recent
// first. Returns an empty slice when the case has none.
func ListDocumentsByCase(ctx context.Context, db *gorm.DB, caseID string) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListAllDocuments streams every document row, used to build the in-memory
// search index at startup. Extracted text is included, so callers should not
// hold the slice longer than indexing takes.
func ListAllDocuments(ctx context.Context, db *gorm.DB) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}
