package listener

import (
	"io"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/platform/fhir"
)

const (
	aliveMessage    = "Server is alive and listening..."
	notFoundMessage = "404 - Not Found"
)

// Handler serves the liveness and notification routes. Notification bodies
// are queued for the worker; the sender gets its 200 before interpretation.
// Bodies that find the queue full are only counted in dropped.
type Handler struct {
	queue   chan<- []byte
	dropped *atomic.Int64
	logger  zerolog.Logger
}

func NewHandler(queue chan<- []byte, dropped *atomic.Int64, logger zerolog.Logger) *Handler {
	return &Handler{queue: queue, dropped: dropped, logger: logger}
}

// RegisterRoutes adds the listener routes to e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Alive)
	e.POST("/notification", h.Notify)
}

func (h *Handler) Alive(c echo.Context) error {
	return c.String(http.StatusOK, aliveMessage)
}

// Notify acknowledges a notification and hands its body to the worker.
// Bodies that are not JSON are queued as empty payloads.
func (h *Handler) Notify(c echo.Context) error {
	var body []byte
	if fhir.IsJSONContentType(c.Request().Header.Get(echo.HeaderContentType)) {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		body = b
	}

	select {
	case h.queue <- body:
	default:
		h.dropped.Add(1)
		rid, _ := c.Get("request_id").(string)
		h.logger.Warn().Str("request_id", rid).Msg("notification queue full, dropping payload")
	}
	return c.NoContent(http.StatusOK)
}
