package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"memovault/internal/apperr"
	"memovault/internal/auth"
	"memovault/internal/notes"
)

type notePayload struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	IsFavorite bool       `json:"is_favorite"`
	IsDeleted  bool       `json:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toNotePayload(note *notes.Note) notePayload {
	return notePayload{
		ID:         note.ID,
		Title:      note.Title,
		Content:    note.Content,
		IsFavorite: note.IsFavorite,
		IsDeleted:  note.IsDeleted,
		DeletedAt:  note.DeletedAt,
		CreatedAt:  note.CreatedAt,
		UpdatedAt:  note.UpdatedAt,
	}
}

func toNotePayloads(list []notes.Note) []notePayload {
	payloads := make([]notePayload, 0, len(list))
	for i := range list {
		payloads = append(payloads, toNotePayload(&list[i]))
	}
	return payloads
}

type noteWriteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *httpHandler) ownerID(c *gin.Context) (string, bool) {
	principal, err := auth.PrincipalFrom(c)
	if err != nil {
		h.fail(c, apperr.New(apperr.KindUnauthenticated, "authentication required"))
		return "", false
	}
	return principal.ID, true
}

func (h *httpHandler) listing(c *gin.Context, list func(context.Context, string) ([]notes.Note, error)) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	result, err := list(c.Request.Context(), ownerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  toNotePayloads(result),
		"count": len(result),
	})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	h.listing(c, h.notes.List)
}

func (h *httpHandler) handleListFavorites(c *gin.Context) {
	h.listing(c, h.notes.ListFavorites)
}

func (h *httpHandler) handleListTrash(c *gin.Context) {
	h.listing(c, h.notes.ListTrash)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	note, err := h.notes.Get(c.Request.Context(), c.Param("id"), ownerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotePayload(note))
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	var request noteWriteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("title and content are required"))
		return
	}
	note, err := h.notes.Create(c.Request.Context(), ownerID, request.Title, request.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toNotePayload(note))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	var request noteWriteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, apperr.Validation("title and content are required"))
		return
	}
	note, err := h.notes.Update(c.Request.Context(), c.Param("id"), ownerID, request.Title, request.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotePayload(note))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	if err := h.notes.SoftDelete(c.Request.Context(), c.Param("id"), ownerID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "note moved to trash"})
}

func (h *httpHandler) handlePurgeNote(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	if err := h.notes.Purge(c.Request.Context(), c.Param("id"), ownerID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "note permanently deleted"})
}

func (h *httpHandler) handleToggleFavorite(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	note, err := h.notes.ToggleFavorite(c.Request.Context(), c.Param("id"), ownerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotePayload(note))
}

func (h *httpHandler) handleRestoreNote(c *gin.Context) {
	ownerID, ok := h.ownerID(c)
	if !ok {
		return
	}
	note, err := h.notes.Restore(c.Request.Context(), c.Param("id"), ownerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toNotePayload(note))
}
