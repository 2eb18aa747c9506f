package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/subscriber/internal/domain/subscription"
	"github.com/ehr/subscriber/internal/domain/topic"
	"github.com/ehr/subscriber/internal/platform/fhir"
)

// DefaultThreshold is the number of notifications after which the run ends.
const DefaultThreshold = 2

// subscriptionTimeout bounds the subscription calls that must finish even
// after the run's context is cancelled.
const subscriptionTimeout = 30 * time.Second

var (
	ErrNoTopics           = errors.New("failed to get topics")
	ErrPatient            = errors.New("failed to ensure patient")
	ErrCreateSubscription = errors.New("failed to create subscription")
	ErrPostEncounter      = errors.New("failed to post encounter")
	ErrNotification       = errors.New("failed to process notification")
	ErrInterrupted        = errors.New("interrupted")
)

type TopicLister interface {
	List(ctx context.Context) []topic.Topic
}

type PatientEnsurer interface {
	EnsurePatient(ctx context.Context, id string) (bool, error)
}

type SubscriptionManager interface {
	CreateSubscription(ctx context.Context, req *subscription.Request) (string, error)
	DeleteSubscription(ctx context.Context, id string) error
}

type EncounterPoster interface {
	CreateEncounter(ctx context.Context, patientRef string) (string, error)
}

// Options are the per-run values the orchestrator needs from configuration.
type Options struct {
	PatientID       string
	CallbackURL     string
	Threshold       int
	HeartbeatPeriod int
	Reason          string
}

// Orchestrator sequences the demo run and decides when and how it ends.
// Notification callbacks may arrive while Run is still in progress.
type Orchestrator struct {
	topics        TopicLister
	patients      PatientEnsurer
	subscriptions SubscriptionManager
	encounters    EncounterPoster
	opts          Options
	logger        zerolog.Logger

	mu                sync.Mutex
	subscriptionID    string
	encounterID       string
	notificationCount int
	ending            bool

	once     sync.Once
	done     chan struct{}
	exitCode int
	err      error
}

func New(topics TopicLister, patients PatientEnsurer, subscriptions SubscriptionManager, encounters EncounterPoster, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Orchestrator{
		topics:        topics,
		patients:      patients,
		subscriptions: subscriptions,
		encounters:    encounters,
		opts:          opts,
		logger:        logger.With().Str("component", "orchestrator").Logger(),
		done:          make(chan struct{}),
	}
}

// Run performs the startup sequence: topics, patient, subscription,
// encounter. The listener must already be bound. A failed step ends the run
// with exit code 1 and the error is returned; on success the run stays open
// until notifications, a notification error, or Interrupt end it.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.subscribe(ctx); err != nil || o.finished() {
		return o.Err()
	}

	if !o.PostEncounter(ctx) {
		return o.abort(ctx, ErrPostEncounter)
	}
	o.logger.Info().Int("threshold", o.opts.Threshold).Msg("waiting for notifications")
	return nil
}

// RunBasic subscribes and immediately unsubscribes again. No encounter is
// posted and no notification is awaited.
func (o *Orchestrator) RunBasic(ctx context.Context) error {
	if err := o.subscribe(ctx); err != nil || o.finished() {
		return o.Err()
	}
	o.finish(ctx, 0, nil)
	return o.Err()
}

func (o *Orchestrator) subscribe(ctx context.Context) error {
	topics := o.topics.List(ctx)
	if len(topics) == 0 {
		return o.abort(ctx, ErrNoTopics)
	}
	for _, t := range topics {
		o.logger.Info().
			Str("id", t.ID).
			Str("title", t.Title).
			Str("description", t.Description).
			Str("url", t.URL).
			Msg("topic")
	}
	if o.finished() {
		return nil
	}

	if _, err := o.patients.EnsurePatient(ctx, o.opts.PatientID); err != nil {
		return o.abort(ctx, fmt.Errorf("%w %s: %v", ErrPatient, o.opts.PatientID, err))
	}
	if o.finished() {
		return nil
	}

	if !o.CreateSubscription(ctx, topics[0]) {
		return o.abort(ctx, ErrCreateSubscription)
	}
	return nil
}

// CreateSubscription subscribes the configured patient to t and records the
// id. It reports success. Once sent, the request is not cancelled with ctx:
// the server may already hold the subscription and only its id lets the run
// remove it.
func (o *Orchestrator) CreateSubscription(ctx context.Context, t topic.Topic) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), subscriptionTimeout)
	defer cancel()

	req := &subscription.Request{
		TopicURL:        t.URL,
		PatientRef:      fhir.RelativeReference("Patient", o.opts.PatientID),
		Endpoint:        o.opts.CallbackURL,
		HeartbeatPeriod: o.opts.HeartbeatPeriod,
		Reason:          o.opts.Reason,
	}
	id, err := o.subscriptions.CreateSubscription(ctx, req)
	if err != nil {
		o.logger.Error().Err(err).Str("topic", t.URL).Msg("create subscription failed")
		return false
	}
	o.mu.Lock()
	o.subscriptionID = id
	ending := o.ending
	o.mu.Unlock()

	// The run ended while the request was in flight.
	if ending {
		o.DeleteSubscription(ctx)
	}
	return true
}

// DeleteSubscription removes the held subscription. Without one it returns
// false and sends nothing. The id is kept when the server refuses.
func (o *Orchestrator) DeleteSubscription(ctx context.Context) bool {
	o.mu.Lock()
	id := o.subscriptionID
	o.subscriptionID = ""
	o.mu.Unlock()
	if id == "" {
		return false
	}

	if err := o.subscriptions.DeleteSubscription(ctx, id); err != nil {
		o.logger.Error().Err(err).Str("subscription", id).Msg("delete subscription failed")
		o.mu.Lock()
		if o.subscriptionID == "" {
			o.subscriptionID = id
		}
		o.mu.Unlock()
		return false
	}
	return true
}

// PostEncounter creates the triggering encounter and records its id.
func (o *Orchestrator) PostEncounter(ctx context.Context) bool {
	id, err := o.encounters.CreateEncounter(ctx, fhir.RelativeReference("Patient", o.opts.PatientID))
	if err != nil {
		o.logger.Error().Err(err).Msg("post encounter failed")
		return false
	}
	o.mu.Lock()
	o.encounterID = id
	o.mu.Unlock()
	o.logger.Info().Str("encounter", fhir.RelativeReference("Encounter", id)).Msg("posted encounter")
	return true
}

// HandleNotification counts a received notification and ends the run with
// exit code 0 once the threshold is reached.
func (o *Orchestrator) HandleNotification(ctx context.Context, ev subscription.Event) {
	if o.finished() {
		o.logger.Debug().Str("type", string(ev.Type)).Msg("run finished, ignoring notification")
		return
	}

	o.mu.Lock()
	o.notificationCount++
	count := o.notificationCount
	o.mu.Unlock()

	if count < o.opts.Threshold {
		return
	}
	o.logger.Info().Int("notifications", count).Msg("notification threshold reached")
	o.finish(ctx, 0, nil)
}

// HandleNotificationError ends the run with exit code 1.
func (o *Orchestrator) HandleNotificationError(ctx context.Context, err error) {
	if o.finished() {
		return
	}
	o.finish(ctx, 1, fmt.Errorf("%w: %v", ErrNotification, err))
}

// Interrupt ends the run with exit code 1 after a best-effort delete.
func (o *Orchestrator) Interrupt(ctx context.Context) {
	o.finish(ctx, 1, ErrInterrupted)
}

func (o *Orchestrator) abort(ctx context.Context, err error) error {
	o.logger.Error().Err(err).Msg("aborting")
	o.finish(ctx, 1, err)
	return o.Err()
}

// finish deletes any held subscription and records the outcome. Only the
// first call has any effect.
func (o *Orchestrator) finish(ctx context.Context, code int, err error) {
	o.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), subscriptionTimeout)
		defer cancel()
		o.mu.Lock()
		o.ending = true
		o.mu.Unlock()
		o.DeleteSubscription(ctx)
		o.mu.Lock()
		o.exitCode = code
		o.err = err
		o.mu.Unlock()
		close(o.done)
	})
}

func (o *Orchestrator) finished() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Done is closed when the run has ended.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// ExitCode is the process exit code; meaningful once Done is closed.
func (o *Orchestrator) ExitCode() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exitCode
}

// Err is nil for a successful run.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Orchestrator) SubscriptionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subscriptionID
}

func (o *Orchestrator) EncounterID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.encounterID
}

func (o *Orchestrator) NotificationCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.notificationCount
}
