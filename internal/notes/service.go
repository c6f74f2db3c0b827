package notes

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"memovault/internal/apperr"
	"memovault/internal/identifier"
	"memovault/internal/sanitize"
)

var (
	errMissingDatabase   = errors.New("notes: database handle is required")
	errMissingIDProvider = errors.New("notes: id provider is required")
)

// ServiceConfig wires the dependencies of the note service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider identifier.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service implements the note lifecycle: Active notes can be trashed,
// trashed notes restored or purged. Every operation is scoped to
// (id, owner); an operation that matches no row reports not-found whether
// the note is absent, trashed in the wrong state, or owned by someone else.
type Service struct {
	db         *gorm.DB
	idProvider identifier.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the note service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create sanitizes and validates the input, then persists a new Active,
// non-favorite note for the owner. The stored row is re-fetched so callers
// see server-assigned fields.
func (s *Service) Create(ctx context.Context, ownerID, title, content string) (*Note, error) {
	if ownerID == "" {
		return nil, apperr.Validation("owner is required")
	}
	cleanTitle, cleanContent, err := sanitizeInput(title, content)
	if err != nil {
		return nil, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError("notes.create", "id_generation_failed", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not create note", err)
	}

	note := Note{
		ID:      id,
		OwnerID: &ownerID,
		Title:   cleanTitle,
		Content: cleanContent,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError("notes.create", "insert_failed", err, zap.String("owner_id", ownerID))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not create note", err)
	}

	return s.Get(ctx, id, ownerID)
}

// Get loads a single note owned by ownerID, regardless of deleted state.
func (s *Service) Get(ctx context.Context, id, ownerID string) (*Note, error) {
	var note Note
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "note not found")
	}
	if err != nil {
		s.logError("notes.get", "query_failed", err, zap.String("note_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not load note", err)
	}
	return &note, nil
}

// Update replaces title and content after sanitization. Deleted state is
// deliberately not checked: a trashed note stays editable by direct id.
func (s *Service) Update(ctx context.Context, id, ownerID, title, content string) (*Note, error) {
	cleanTitle, cleanContent, err := sanitizeInput(title, content)
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]interface{}{
			"title":   cleanTitle,
			"content": cleanContent,
		})
	if result.Error != nil {
		s.logError("notes.update", "update_failed", result.Error, zap.String("note_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not update note", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "note not found")
	}

	return s.Get(ctx, id, ownerID)
}

// ToggleFavorite flips the favorite flag. This is a read-then-write pair,
// not an atomic toggle; concurrent toggles on the same note are last-writer-
// wins.
func (s *Service) ToggleFavorite(ctx context.Context, id, ownerID string) (*Note, error) {
	note, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("is_favorite", !note.IsFavorite)
	if result.Error != nil {
		s.logError("notes.toggle_favorite", "update_failed", result.Error, zap.String("note_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not toggle favorite", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "note not found")
	}

	return s.Get(ctx, id, ownerID)
}

// SoftDelete transitions Active → Trashed. Deleting an already trashed note
// matches no row and reports not-found.
func (s *Service) SoftDelete(ctx context.Context, id, ownerID string) error {
	now := s.clock().UTC()
	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", id, ownerID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
		})
	if result.Error != nil {
		s.logError("notes.soft_delete", "update_failed", result.Error, zap.String("note_id", id))
		return apperr.Wrap(apperr.KindUnavailable, "could not delete note", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "note not found")
	}
	return nil
}

// Restore transitions Trashed → Active, clearing the deletion marker.
func (s *Service) Restore(ctx context.Context, id, ownerID string) (*Note, error) {
	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", id, ownerID, true).
		Updates(map[string]interface{}{
			"is_deleted": false,
			"deleted_at": nil,
		})
	if result.Error != nil {
		s.logError("notes.restore", "update_failed", result.Error, zap.String("note_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not restore note", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperr.New(apperr.KindNotFound, "note not found")
	}

	return s.Get(ctx, id, ownerID)
}

// Purge hard-deletes a trashed note. Active notes cannot be purged directly;
// they must pass through the trash first.
func (s *Service) Purge(ctx context.Context, id, ownerID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", id, ownerID, true).
		Delete(&Note{})
	if result.Error != nil {
		s.logError("notes.purge", "delete_failed", result.Error, zap.String("note_id", id))
		return apperr.Wrap(apperr.KindUnavailable, "could not purge note", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "note not found")
	}
	return nil
}

// List returns the owner's Active notes, newest-updated first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Note, error) {
	return s.list(ctx, "notes.list", s.scope(ctx, ownerID, false))
}

// ListFavorites returns the owner's Active favorite notes, newest-updated
// first.
func (s *Service) ListFavorites(ctx context.Context, ownerID string) ([]Note, error) {
	return s.list(ctx, "notes.list_favorites",
		s.scope(ctx, ownerID, false).Where("is_favorite = ?", true))
}

// ListTrash returns the owner's Trashed notes, newest-deleted first.
func (s *Service) ListTrash(ctx context.Context, ownerID string) ([]Note, error) {
	query := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_deleted = ?", ownerID, true).
		Order("deleted_at DESC")
	return s.list(ctx, "notes.list_trash", query)
}

func (s *Service) scope(ctx context.Context, ownerID string, deleted bool) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("owner_id = ? AND is_deleted = ?", ownerID, deleted).
		Order("updated_at DESC")
}

func (s *Service) list(_ context.Context, operation string, query *gorm.DB) ([]Note, error) {
	var result []Note
	if err := query.Find(&result).Error; err != nil {
		s.logError(operation, "query_failed", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "could not list notes", err)
	}
	return result, nil
}

// sanitizeInput runs both sanitizers and enforces the emptiness and length
// constraints. Markup-only values sanitize to empty and are rejected here,
// not silently accepted as blank.
func sanitizeInput(title, content string) (string, string, error) {
	cleanTitle := sanitize.Title(title)
	cleanContent := sanitize.Content(content)

	if cleanTitle == "" {
		return "", "", apperr.Validation("title is required")
	}
	if cleanContent == "" {
		return "", "", apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(cleanTitle) > sanitize.MaxTitleLength {
		return "", "", apperr.Validation("title exceeds 255 characters")
	}
	if utf8.RuneCountInString(cleanContent) > sanitize.MaxContentLength {
		return "", "", apperr.Validation("content exceeds 50000 characters")
	}
	return cleanTitle, cleanContent, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notes service error", attrs...)
}
