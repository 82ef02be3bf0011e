// Package v1 provides the HTTP API handlers for the crew backend.
package v1

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kdkiss/CrewAI-Command-Center/internal/metrics"
	"github.com/kdkiss/CrewAI-Command-Center/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service       *service.Service
	sampler       *metrics.Sampler
	recorder      *metrics.Recorder
	defaultWindow string
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, sampler *metrics.Sampler, recorder *metrics.Recorder, defaultWindow string) *Handler {
	return &Handler{
		service:       svc,
		sampler:       sampler,
		recorder:      recorder,
		defaultWindow: defaultWindow,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/system/stats", h.SystemStats)
	api.GET("/system/stats/history", h.SystemStatsHistory)
	api.GET("/activity", h.Activity)
	api.GET("/crews", h.ListCrews)
	api.POST("/crews/:crew_id/start", h.StartCrew)
	api.POST("/crews/:crew_id/stop", h.StopCrew)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// SystemStats returns one fresh system statistics sample. Collection
// failures are reported in the payload, not as a server error.
func (h *Handler) SystemStats(c echo.Context) error {
	stats, err := h.sampler.Collect(c.Request().Context(), true)
	if err != nil {
		log.Printf("Error getting system stats: %v", err)
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
	}
	payload := h.sampler.AttachHistory(stats)
	payload["status"] = "success"
	return c.JSON(http.StatusOK, payload)
}

// SystemStatsHistory returns the retained stats time series for a window.
func (h *Handler) SystemStatsHistory(c echo.Context) error {
	window := c.QueryParam("window")
	if window == "" {
		window = h.defaultWindow
	}

	payload, err := h.recorder.BuildHistoryPayload(window)
	if err != nil {
		if errors.Is(err, metrics.ErrUnsupportedWindow) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	payload["status"] = "success"
	return c.JSON(http.StatusOK, payload)
}

// Activity returns the retained activity history.
func (h *Handler) Activity(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "success",
		"events": h.service.ActivityEvents(),
	})
}

// ListCrews returns every crew with its derived status.
func (h *Handler) ListCrews(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.ListCrews())
}

type startCrewRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// StartCrew launches a crew subprocess.
func (h *Handler) StartCrew(c echo.Context) error {
	crewID := c.Param("crew_id")

	var req startCrewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	log.Printf("Starting crew %s with inputs: %v", crewID, req.Inputs)

	processID, err := h.service.StartCrew(c.Request().Context(), crewID, req.Inputs)
	if err != nil {
		log.Printf("Error starting crew %s: %v", crewID, err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"process_id": processID,
		"success":    true,
	})
}

// StopCrew requests termination of a crew. Stopping an unknown crew is a
// no-op and still succeeds.
func (h *Handler) StopCrew(c echo.Context) error {
	crewID := c.Param("crew_id")
	log.Printf("Stopping crew %s", crewID)

	h.service.StopCrew(crewID)
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "stopped",
		"success": true,
	})
}
