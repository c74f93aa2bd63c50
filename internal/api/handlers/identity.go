package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/workflow"
	"github.com/your-org/faceid/pkg/dto"
)

type Registrar interface {
	Register(ctx context.Context, displayName string, images [][]byte) (*models.Person, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, encoded []byte) (*models.MatchResult, error)
}

type IdentityHandler struct {
	registrar  Registrar
	recognizer Recognizer
}

func NewIdentityHandler(registrar Registrar, recognizer Recognizer) *IdentityHandler {
	return &IdentityHandler{registrar: registrar, recognizer: recognizer}
}

// Recognize identifies the face in image_data, or in a live frame when
// image_data is absent.
func (h *IdentityHandler) Recognize(c *gin.Context) {
	var req dto.RecognizeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}

	encoded, err := decodeBase64(req.ImageData)
	if err != nil {
		writeError(c, fmt.Errorf("%w: image_data: %v", workflow.ErrInvalidInput, err))
		return
	}

	res, err := h.recognizer.Recognize(c.Request.Context(), encoded)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RecognizeResponse{
		PersonID:    res.PersonID,
		DisplayName: res.DisplayName,
		Confidence:  res.Confidence,
		Timestamp:   res.QueryTime.Format(time.RFC3339),
	})
}

// Register enrolls a new person from live captures or from the supplied images.
func (h *IdentityHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err))
		return
	}

	var images [][]byte
	for i, s := range req.Images {
		data, err := decodeBase64(s)
		if err != nil || len(data) == 0 {
			writeError(c, fmt.Errorf("%w: images[%d] is not valid base64", workflow.ErrInvalidInput, i))
			return
		}
		images = append(images, data)
	}

	person, err := h.registrar.Register(c.Request.Context(), req.Name, images)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterResponse{
		Message:     fmt.Sprintf("User %s registered successfully with ID %s", person.DisplayName, person.ID),
		PersonID:    person.ID,
		DisplayName: person.DisplayName,
	})
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
	}
	return nil
}

// decodeBase64 accepts standard or URL-safe base64, optionally as a data URL.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
