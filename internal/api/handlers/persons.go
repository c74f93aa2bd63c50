package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/workflow"
	"github.com/your-org/faceid/pkg/dto"
)

type PersonReader interface {
	ListPersons(ctx context.Context, limit, offset int) ([]models.Person, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
}

type ImageReader interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

type PersonHandler struct {
	persons PersonReader
	images  ImageReader
}

func NewPersonHandler(persons PersonReader, images ImageReader) *PersonHandler {
	return &PersonHandler{persons: persons, images: images}
}

func (h *PersonHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	persons, err := h.persons.ListPersons(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		resp = append(resp, toPersonResponse(&persons[i]))
	}
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

func (h *PersonHandler) Get(c *gin.Context) {
	person, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPersonResponse(person))
}

func (h *PersonHandler) ProfileImage(c *gin.Context) {
	person, ok := h.lookup(c)
	if !ok {
		return
	}

	data, err := h.images.Get(c.Request.Context(), person.ProfileImageRef)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *PersonHandler) lookup(c *gin.Context) (*models.Person, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, workflow.ErrInvalidInput)
		return nil, false
	}
	person, err := h.persons.GetPerson(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return person, true
}

func toPersonResponse(p *models.Person) dto.PersonResponse {
	return dto.PersonResponse{
		PersonID:        p.ID,
		DisplayName:     p.DisplayName,
		SampleCount:     p.SampleCount,
		EnrolledAt:      p.EnrolledAt.Format(time.RFC3339),
		ProfileImageURL: "/v1/persons/" + p.ID.String() + "/profile-image",
	}
}
