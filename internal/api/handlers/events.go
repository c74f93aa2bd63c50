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

// EventReader lists persisted identity events, newest first.
type EventReader interface {
	ListIdentityEvents(ctx context.Context, personID *uuid.UUID, limit int) ([]models.IdentityEvent, error)
}

type EventHandler struct {
	events EventReader
}

func NewEventHandler(events EventReader) *EventHandler {
	return &EventHandler{events: events}
}

// List serves GET /v1/events?person_id=&limit=.
func (h *EventHandler) List(c *gin.Context) {
	var personID *uuid.UUID
	if pidStr := c.Query("person_id"); pidStr != "" {
		id, err := uuid.Parse(pidStr)
		if err != nil {
			writeError(c, workflow.ErrInvalidInput)
			return
		}
		personID = &id
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit > 500 {
		limit = 500
	}

	events, err := h.events.ListIdentityEvents(c.Request.Context(), personID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.IdentityEventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, dto.IdentityEventListResponse{Events: resp, Total: len(resp)})
}

func toEventResponse(ev *models.IdentityEvent) dto.IdentityEventResponse {
	return dto.IdentityEventResponse{
		ID:          ev.ID,
		Type:        string(ev.Type),
		PersonID:    ev.PersonID,
		DisplayName: ev.DisplayName,
		Confidence:  ev.Confidence,
		Reason:      ev.Reason,
		Timestamp:   ev.Timestamp.Format(time.RFC3339),
	}
}
