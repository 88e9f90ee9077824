package web

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-intake/pkg/camera"
	"github.com/teslashibe/go-intake/pkg/capture"
	"github.com/teslashibe/go-intake/pkg/hub"
	"github.com/teslashibe/go-intake/pkg/intake"
)

// maxAudioBytes caps uploaded audio clips.
const maxAudioBytes = 16 * 1024 * 1024

// Status is the payload of GET /api/status.
type Status struct {
	Capture          capture.Status `json:"capture"`
	SettleDelayMS    int64          `json:"settle_delay_ms"`
	Model            string         `json:"model"`
	ModelError       string         `json:"model_error,omitempty"`
	Rating           int            `json:"rating"`
	OverlayAvailable bool           `json:"overlay_available"`
	Form             intake.Status  `json:"form"`
}

func (s *Server) status() Status {
	st := Status{
		Capture:          s.deps.Controller.Status(),
		SettleDelayMS:    s.deps.Controller.SettleDelay().Milliseconds(),
		Model:            "disabled",
		Rating:           s.deps.Rating.Value(),
		OverlayAvailable: !s.deps.Controller.Preview().Empty(),
		Form:             s.deps.Form.Status(),
	}
	if m := s.deps.Model; m != nil {
		st.Model = m.State().String()
		if err := m.Err(); err != nil {
			st.ModelError = err.Error()
		}
	}
	return st
}

// handleStatus returns the kiosk state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleCapture starts a capture session in the background
func (s *Server) handleCapture(c *fiber.Ctx) error {
	id, err := s.deps.Controller.Start()
	switch {
	case errors.Is(err, capture.ErrSessionActive):
		return errorJSON(c, fiber.StatusConflict, err)
	case isClosed(err):
		return errorJSON(c, fiber.StatusServiceUnavailable, err)
	case err != nil:
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"session_id":      id,
		"settle_delay_ms": s.deps.Controller.SettleDelay().Milliseconds(),
	})
}

// handleImage returns the latest captured photo
func (s *Server) handleImage(c *fiber.Ctx) error {
	img, rating, ok := s.deps.Form.Image()
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, errors.New("no image captured"))
	}
	c.Set("X-Rating", strconv.Itoa(rating))
	c.Set(fiber.HeaderContentType, img.ContentType)
	return c.Send(img.Data)
}

// handleOverlay returns the confirmation overlay
func (s *Server) handleOverlay(c *fiber.Ctx) error {
	data, err := s.deps.Controller.Preview().PNG()
	if err != nil {
		return errorJSON(c, fiber.StatusNotFound, errors.New("no overlay available"))
	}
	c.Set(fiber.HeaderContentType, capture.ImageContentType)
	return c.Send(data)
}

// RatingRequest is the body of PUT /api/rating.
type RatingRequest struct {
	Rating int `json:"rating"`
}

func (s *Server) handleGetRating(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"rating": s.deps.Rating.Value(),
		"min":    capture.MinRating,
		"max":    capture.MaxRating,
	})
}

func (s *Server) handleSetRating(c *fiber.Ctx) error {
	var req RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.deps.Rating.Set(req.Rating); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(fiber.Map{"rating": s.deps.Rating.Value()})
}

// handleOptions returns treatment and symptom choices
func (s *Server) handleOptions(c *fiber.Ctx) error {
	return c.JSON(intake.AllOptions())
}

func (s *Server) handleQuestionnaire(c *fiber.Ctx) error {
	var q intake.Questionnaire
	if err := c.BodyParser(&q); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	if err := s.deps.Form.SetQuestionnaire(q); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(s.deps.Form.Questionnaire())
}

// handleAudio accepts a multipart "audio" WAV upload
func (s *Server) handleAudio(c *fiber.Ctx) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	info, err := s.deps.Form.SetAudio(data)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(info)
}

// handleSubmit sends the completed form to the backend
func (s *Server) handleSubmit(c *fiber.Ctx) error {
	payload, err := s.deps.Form.Payload()
	if err != nil {
		var inc *intake.IncompleteError
		if errors.As(err, &inc) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   err.Error(),
				"missing": inc.Missing,
			})
		}
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	if s.deps.Submitter == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, intake.ErrNoSubmitURL)
	}

	ack, err := s.deps.Submitter.Submit(c.UserContext(), payload)
	if err != nil {
		s.logger.Warn("submission failed", "error", err)
		var apiErr *intake.APIError
		if errors.As(err, &apiErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":          err.Error(),
				"detail":         apiErr.Detail,
				"backend_status": apiErr.StatusCode,
			})
		}
		return errorJSON(c, fiber.StatusBadGateway, err)
	}

	s.logger.Info("intake submitted", "id", payload.Questionnaire.ID)
	return c.JSON(ack)
}

// handleReset clears the form, the rating and the overlay
func (s *Server) handleReset(c *fiber.Ctx) error {
	s.deps.Form.Reset()
	if err := s.deps.Rating.Set(capture.DefaultRating); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	s.deps.Controller.ClearOverlay()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.deps.Camera.GetConfig())
}

// handleSetCameraConfig applies a partial update, optionally starting from a preset
func (s *Server) handleSetCameraConfig(c *fiber.Ctx) error {
	update, err := camera.ParseUpdate(c.Body())
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	cfg, err := s.deps.Camera.Apply(update)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(cfg)
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"presets": camera.PresetNames()})
}

// handleStatusWS sends the current status, then streams events
func (s *Server) handleStatusWS(c *websocket.Conn) {
	st := s.status()
	if err := c.WriteJSON(EventMessage{Type: "status", Status: &st}); err != nil {
		return
	}
	s.serveHub(s.statusHub, c)
}

// handlePreviewWS streams viewfinder frames and overlays
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	s.serveHub(s.previewHub, c)
}

func (s *Server) serveHub(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
