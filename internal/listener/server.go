package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/domain/subscription"
	"github.com/ehr/subscriber/internal/platform/fhir"
	"github.com/ehr/subscriber/internal/platform/middleware"
)

const (
	bodyLimit = "2M"
	queueSize = 64
)

// Sink receives every interpreted notification in arrival order.
type Sink interface {
	HandleNotification(ctx context.Context, ev subscription.Event)
	HandleNotificationError(ctx context.Context, err error)
}

// Server is the local HTTP endpoint the FHIR server delivers notifications
// to, plus the worker that interprets them.
type Server struct {
	echo    *echo.Echo
	sink    Sink
	queue   chan []byte
	dropped atomic.Int64
	port    int
	ln      net.Listener
	logger  zerolog.Logger
}

// New builds a listener for port. Port 0 picks a free port on Listen.
func New(port int, sink Sink, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "listener").Logger()
	s := &Server{
		echo:   echo.New(),
		sink:   sink,
		queue:  make(chan []byte, queueSize),
		port:   port,
		logger: logger,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))

	NewHandler(s.queue, &s.dropped, logger).RegisterRoutes(e)
	return s
}

// Listen binds the port. It must succeed before the subscription is
// created, or the server's handshake has nowhere to go.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	s.ln = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening for notifications")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve handles requests until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errors.New("listener: Serve called before Listen")
	}
	if err := s.echo.Server.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Work interprets queued notifications one at a time until ctx is done.
func (s *Server) Work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case body := <-s.queue:
			s.process(ctx, body)
			s.flushDropped(ctx)
		}
	}
}

// flushDropped reports payloads the handler could not queue. A drop only
// happens while the queue is full, so the worker always gets here after it.
// The payload is gone, so each counts as a notification with no data.
func (s *Server) flushDropped(ctx context.Context) {
	for n := s.dropped.Swap(0); n > 0; n-- {
		s.logger.Warn().Msg("counting dropped notification")
		s.sink.HandleNotification(ctx, subscription.Event{Type: subscription.TypeUnknown})
	}
}

func (s *Server) process(ctx context.Context, body []byte) {
	ev, err := subscription.Interpret(body)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not interpret notification")
		s.sink.HandleNotificationError(ctx, err)
		return
	}
	logEvent(s.logger, ev)
	s.sink.HandleNotification(ctx, ev)
}

func logEvent(logger zerolog.Logger, ev subscription.Event) {
	if ev.IsHandshake() {
		logger.Info().
			Str("topic", ev.TopicURL).
			Str("subscription", ev.SubscriptionURL).
			Str("status", ev.Status).
			Msg("handshake received")
		return
	}
	logger.Info().
		Str("type", string(ev.Type)).
		Stringer("schema", ev.Schema).
		Str("topic", ev.TopicURL).
		Str("subscription", ev.SubscriptionURL).
		Str("status", ev.Status).
		Stringer("events_in_notification", ev.BundleEventCount).
		Stringer("events_since_start", ev.EventCount).
		Msgf("notification #%s received", ev.EventCount)
}

// handleError answers unknown routes and methods with the plain 404 text
// senders expect, and anything else with an OperationOutcome.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}

	var werr error
	switch code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		werr = c.String(http.StatusNotFound, notFoundMessage)
	default:
		issue := fhir.IssueTypeProcessing
		switch code {
		case http.StatusRequestEntityTooLarge:
			issue = fhir.IssueTypeTooCostly
		case http.StatusInternalServerError:
			issue = fhir.IssueTypeException
		}
		outcome := fhir.NewOutcomeBuilder().
			AddIssue(fhir.IssueSeverityError, issue, msg).
			Build()
		werr = c.JSON(code, outcome)
	}
	if werr != nil {
		s.logger.Error().Err(werr).Msg("write error response")
	}
}
