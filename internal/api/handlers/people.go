package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/photopipe/internal/models"
	"github.com/your-org/photopipe/internal/storage"
	"github.com/your-org/photopipe/pkg/dto"
)

type PersonHandler struct {
	db *storage.Store
}

func NewPersonHandler(db *storage.Store) *PersonHandler {
	return &PersonHandler{db: db}
}

func (h *PersonHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	persons, err := h.db.ListPersons(c.Request.Context(), limit, offset)
	if err != nil {
		slog.Error("list persons", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list persons failed"})
		return
	}

	resp := dto.PersonListResponse{Persons: make([]dto.PersonResponse, 0, len(persons))}
	for _, p := range persons {
		resp.Persons = append(resp.Persons, toPersonResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PersonHandler) Get(c *gin.Context) {
	person, ok := h.loadPerson(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPersonResponse(person))
}

// Update sets the user-editable fields: the label and the confirmation flag.
func (h *PersonHandler) Update(c *gin.Context) {
	person, ok := h.loadPerson(c)
	if !ok {
		return
	}

	var req dto.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Name == nil && req.UserConfirmed == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	if err := h.db.UpdatePerson(c.Request.Context(), person.ID, req.Name, req.UserConfirmed); err != nil {
		slog.Error("update person", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update person failed"})
		return
	}

	updated, err := h.db.GetPerson(c.Request.Context(), person.ID)
	if err != nil {
		slog.Error("reload person", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update person failed"})
		return
	}
	c.JSON(http.StatusOK, toPersonResponse(updated))
}

// Merge folds another person into this one. The pipeline can create
// duplicates when photos of the same person are ingested concurrently; merge
// is the manual fix.
func (h *PersonHandler) Merge(c *gin.Context) {
	person, ok := h.loadPerson(c)
	if !ok {
		return
	}

	var req dto.MergePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_id is required"})
		return
	}
	if req.SourceID == person.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot merge a person into itself"})
		return
	}

	if err := h.db.MergePersons(c.Request.Context(), person.ID, req.SourceID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return
		}
		slog.Error("merge persons", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "merge failed"})
		return
	}

	merged, err := h.db.GetPerson(c.Request.Context(), person.ID)
	if err != nil {
		slog.Error("reload person", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "merge failed"})
		return
	}
	c.JSON(http.StatusOK, toPersonResponse(merged))
}

func (h *PersonHandler) loadPerson(c *gin.Context) (*models.Person, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return nil, false
	}

	person, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return nil, false
		}
		slog.Error("load person", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load person failed"})
		return nil, false
	}
	return person, true
}

func toPersonResponse(p *models.Person) dto.PersonResponse {
	return dto.PersonResponse{
		ID:            p.ID,
		Name:          p.Name,
		FaceCount:     p.FaceCount,
		UserConfirmed: p.UserConfirmed,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
