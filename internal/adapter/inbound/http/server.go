package http_handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Jonathanamir1/WubHub-sub004/internal/config"
	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	service port.UploadService
}

func NewServer(cfg *config.Config, service port.UploadService) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:         int(cfg.Upload.MaxChunkSize) + 1024,
		StreamRequestBody: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:     app,
		cfg:     cfg,
		service: service,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Post("/uploads", s.handleCreateSession)
	s.app.Put("/uploads/:id/chunks/:number", s.handleUploadChunk)
	s.app.Post("/uploads/:id/complete", s.handleComplete)
	s.app.Get("/uploads/:id", s.handleStatus)
	s.app.Delete("/uploads/:id", s.handleCancel)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// statusFor maps service errors onto HTTP statuses. Business rejections are
// client errors; everything else is a server fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrDuplicateActiveSession):
		return fiber.StatusConflict
	case errors.Is(err, port.ErrStatusConflict):
		return fiber.StatusConflict
	case domain.IsTerminal(err):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var in port.CreateSessionInput
	if err := c.BodyParser(&in); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}

	session, err := s.service.CreateSession(c.Context(), in)
	if err != nil {
		sdklogger.Warnw("Session creation rejected", "workspace_id", in.WorkspaceID, "filename", in.Filename, "error", err.Error())
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Session creation failed: %v", err))
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (s *Server) handleUploadChunk(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	number, err := strconv.Atoi(c.Params("number"))
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Chunk number must be an integer")
	}

	// Use raw request body stream
	bodyStream := c.Context().RequestBodyStream()
	var payload io.Reader = bodyStream
	if bodyStream == nil {
		payload = bytes.NewReader(c.Body())
	}

	result, err := s.service.UploadChunk(c.Context(), sessionID, number, payload, c.Get("X-Chunk-Checksum"))
	if err != nil {
		sdklogger.Warnw("Chunk upload failed", "session_id", sessionID, "number", number, "error", err.Error())
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Chunk upload failed: %v", err))
	}

	return c.JSON(result)
}

func (s *Server) handleComplete(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if err := s.service.CompleteUpload(c.Context(), sessionID); err != nil {
		sdklogger.Warnw("Complete rejected", "session_id", sessionID, "error", err.Error())
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Complete failed: %v", err))
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Upload complete, assembly queued",
		"id":      sessionID,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	view, err := s.service.GetStatus(c.Context(), sessionID)
	if err != nil {
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Status lookup failed: %v", err))
	}

	return c.JSON(view)
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if err := s.service.Cancel(c.Context(), sessionID); err != nil {
		sdklogger.Warnw("Cancel rejected", "session_id", sessionID, "error", err.Error())
		return s.sendJSONError(c, statusFor(err), fmt.Sprintf("Cancel failed: %v", err))
	}

	return c.JSON(fiber.Map{
		"message": "Upload session cancelled",
		"id":      sessionID,
	})
}
