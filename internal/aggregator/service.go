// Package aggregator polls the hazard feeds, merges their records under a
// shared cluster identity, and publishes immutable snapshots to subscribers.
//
// At most one cycle is in flight. Every trigger cancels the running cycle and
// starts a new one; a cycle publishes only if no newer cycle has started
// since it began, so a slow cycle can never overwrite a newer snapshot.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
	"github.com/couchcryptid/ride-hazard-service/internal/geo"
	"github.com/couchcryptid/ride-hazard-service/internal/incident"
	"github.com/couchcryptid/ride-hazard-service/internal/kvstore"
	"github.com/couchcryptid/ride-hazard-service/internal/observability"
)

// ClusterSource returns the backend's already-merged alert clusters.
type ClusterSource interface {
	FetchClusters(ctx context.Context) ([]domain.AlertRecord, error)
}

// IncidentSource returns the raw features of one official incident feed.
type IncidentSource interface {
	Name() string
	FetchFeatures(ctx context.Context) ([]geo.Feature, error)
}

// Config holds the aggregator's timing settings.
type Config struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// State is the phase of the most recent cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateMerging
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StatePublished:
		return "published"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Service owns the polling loop and the last published snapshot.
type Service struct {
	cfg       Config
	clusters  ClusterSource
	incidents []IncidentSource
	kv        kvstore.Store
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	triggers chan string
	visible  atomic.Bool
	state    atomic.Int32
	snapshot atomic.Pointer[domain.Snapshot]

	// mu orders cycle starts against publishes and guards subscribers.
	mu         sync.Mutex
	generation uint64
	subs       map[int]chan domain.Snapshot
	nextSub    int

	lifecycle sync.Mutex
	stop      context.CancelFunc
	done      chan struct{}
}

// New creates a Service. clusters may be nil when no backend feed is
// configured.
func New(cfg Config, clusters ClusterSource, incidents []IncidentSource, kv kvstore.Store, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	s := &Service{
		cfg:       cfg,
		clusters:  clusters,
		incidents: incidents,
		kv:        kv,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		triggers:  make(chan string, 1),
		subs:      make(map[int]chan domain.Snapshot),
	}
	s.visible.Store(true)
	return s
}

// Start launches the polling loop and kicks off an immediate cycle. It
// returns an error if the service is already running.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stop != nil {
		return errors.New("aggregator already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})

	// Subscribe before the first cycle so no write is missed.
	weatherCh, unsubWeather := s.kv.Subscribe(kvstore.KeyWeatherAlerts)
	coordsCh, unsubCoords := s.kv.Subscribe(kvstore.KeyLastCoords)

	go func() {
		defer close(s.done)
		defer unsubWeather()
		defer unsubCoords()
		s.run(runCtx, weatherCh, coordsCh)
	}()

	s.TriggerNow("startup")
	return nil
}

// Stop cancels any in-flight cycle and waits for the loop to exit. It is
// safe to call more than once, and the Service may be started again
// afterwards.
func (s *Service) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
	s.stop, s.done = nil, nil
}

// TriggerNow requests a new cycle, superseding any cycle in flight. Triggers
// that arrive while one is already pending are coalesced.
func (s *Service) TriggerNow(reason string) {
	select {
	case s.triggers <- reason:
	default:
		s.logger.Debug("trigger coalesced", "reason", reason)
	}
}

// SetVisible records whether the consuming surface is in the foreground.
// Ticks are skipped while hidden; regaining visibility triggers a cycle.
func (s *Service) SetVisible(visible bool) {
	was := s.visible.Swap(visible)
	if visible && !was {
		s.TriggerNow("visible")
	}
}

// Visible reports the current visibility flag.
func (s *Service) Visible() bool {
	return s.visible.Load()
}

// State reports the phase of the most recent cycle.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Snapshot returns a copy of the last published snapshot, if any.
func (s *Service) Snapshot() (domain.Snapshot, bool) {
	snap := s.snapshot.Load()
	if snap == nil {
		return domain.Snapshot{}, false
	}
	return snap.Clone(), true
}

// CheckReadiness returns nil once a snapshot has been published.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.snapshot.Load() == nil {
		return errors.New("aggregator has not published a snapshot yet")
	}
	return nil
}

// Subscribe returns a channel that receives a private copy of every
// published snapshot. The channel holds only the latest snapshot: a slow
// reader skips intermediate ones but never blocks publication. The current
// snapshot, if any, is delivered immediately. The returned func unsubscribes
// and closes the channel.
func (s *Service) Subscribe() (<-chan domain.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.Snapshot, 1)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if snap := s.snapshot.Load(); snap != nil {
		ch <- snap.Clone()
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Service) run(ctx context.Context, weatherCh, coordsCh <-chan struct{}) {
	s.logger.Info("aggregator started", "poll_interval", s.cfg.PollInterval)
	s.metrics.AggregatorActive.Set(1)
	defer s.metrics.AggregatorActive.Set(0)

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var (
		wg          sync.WaitGroup
		cancelCycle context.CancelFunc = func() {}
	)
	defer func() {
		cancelCycle()
		wg.Wait()
	}()

	startCycle := func(reason string) {
		s.mu.Lock()
		cancelCycle()
		s.generation++
		gen := s.generation
		cycleCtx, cancel := context.WithCancel(ctx)
		cancelCycle = cancel
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			s.runCycle(cycleCtx, gen, reason)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("aggregator stopping", "reason", ctx.Err())
			return
		case reason := <-s.triggers:
			startCycle(reason)
		case <-weatherCh:
			startCycle(kvstore.KeyWeatherAlerts)
		case <-coordsCh:
			startCycle(kvstore.KeyLastCoords)
		case <-ticker.Chan():
			if !s.visible.Load() {
				s.logger.Debug("tick skipped while hidden")
				continue
			}
			startCycle("tick")
		}
	}
}

// runCycle executes one fetch-merge-publish cycle. Its result is discarded if
// ctx is cancelled or a newer cycle has started.
func (s *Service) runCycle(ctx context.Context, gen uint64, reason string) {
	start := s.clock.Now()
	s.metrics.CyclesStarted.Inc()
	s.state.Store(int32(StateFetching))
	s.logger.Debug("cycle started", "generation", gen, "reason", reason)

	records := s.gather(ctx)
	if ctx.Err() != nil {
		s.discard(gen, "cancelled during fetch")
		return
	}

	s.state.Store(int32(StateMerging))
	now := s.clock.Now()
	alerts := Merge(records, now)
	snap := domain.Snapshot{
		ID:        uuid.NewString(),
		Alerts:    alerts,
		Total:     len(alerts),
		UpdatedAt: now,
	}

	if !s.publish(ctx, gen, snap) {
		s.discard(gen, "superseded before publish")
		return
	}

	s.metrics.CyclesPublished.Inc()
	s.metrics.SnapshotAlerts.Set(float64(snap.Total))
	s.metrics.CycleDuration.Observe(s.clock.Since(start).Seconds())
	s.logger.Info("snapshot published",
		"snapshot_id", snap.ID,
		"total", snap.Total,
		"reason", reason,
		"generation", gen,
	)
}

func (s *Service) discard(gen uint64, why string) {
	s.metrics.CyclesSuperseded.Inc()
	s.logger.Debug("cycle discarded", "generation", gen, "why", why)
}

// publish stores snap, mirrors it into the KV cache, and fans it out, all
// under mu so that no newer cycle can start between the generation check
// and the store.
func (s *Service) publish(ctx context.Context, gen uint64, snap domain.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || ctx.Err() != nil {
		return false
	}

	s.snapshot.Store(&snap)
	s.state.Store(int32(StatePublished))
	s.writeCache(ctx, snap)

	for _, ch := range s.subs {
		offer(ch, snap.Clone())
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, snap domain.Snapshot) {
	if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyAlerts, snap.Alerts); err != nil {
		s.logger.Error("write alerts cache failed", "error", err)
	}
	if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyAlertsTotal, snap.Total); err != nil {
		s.logger.Error("write alerts total failed", "error", err)
	}
	if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyAlertsUpdatedAt, snap.UpdatedAt.Unix()); err != nil {
		s.logger.Error("write alerts timestamp failed", "error", err)
	}
}

// offer delivers snap to ch, replacing any unread snapshot.
func offer(ch chan domain.Snapshot, snap domain.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// gather fetches every source concurrently. Failed sources contribute no
// records; cancellation is silent.
func (s *Service) gather(ctx context.Context) []domain.AlertRecord {
	var coords domain.Coordinates
	haveCoords, err := kvstore.GetJSON(ctx, s.kv, kvstore.KeyLastCoords, &coords)
	if err != nil {
		s.sourceFailed(ctx, "last_coords", err)
	}
	haveCoords = haveCoords && coords.Valid()

	incidents := s.incidents
	if !haveCoords {
		incidents = nil
	}

	// One slot per source; each goroutine writes only its own slot.
	results := make([][]domain.AlertRecord, 2+len(incidents))
	var wg sync.WaitGroup

	wg.Add(2 + len(incidents))
	go func() {
		defer wg.Done()
		results[0] = s.fetchClusters(ctx)
	}()
	go func() {
		defer wg.Done()
		results[1] = s.readWeather(ctx)
	}()
	for i, src := range incidents {
		go func() {
			defer wg.Done()
			results[2+i] = s.fetchIncidents(ctx, src, coords)
		}()
	}
	wg.Wait()

	var all []domain.AlertRecord
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (s *Service) fetchClusters(ctx context.Context) []domain.AlertRecord {
	if s.clusters == nil {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	records, err := s.clusters.FetchClusters(fetchCtx)
	if err != nil {
		s.sourceFailed(ctx, "cluster", err)
		return nil
	}
	return records
}

func (s *Service) readWeather(ctx context.Context) []domain.AlertRecord {
	var records []domain.AlertRecord
	if _, err := kvstore.GetJSON(ctx, s.kv, kvstore.KeyWeatherAlerts, &records); err != nil {
		s.sourceFailed(ctx, "weather", err)
		return nil
	}
	return records
}

func (s *Service) fetchIncidents(ctx context.Context, src IncidentSource, at domain.Coordinates) []domain.AlertRecord {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	features, err := src.FetchFeatures(fetchCtx)
	if err != nil {
		s.sourceFailed(ctx, src.Name(), err)
		return nil
	}
	return incident.Geofence(src.Name(), features, at.Lat, at.Lon, s.clock.Now())
}

func (s *Service) sourceFailed(ctx context.Context, source string, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		s.logger.Debug("source fetch cancelled", "source", source)
		return
	}
	s.metrics.SourceErrors.WithLabelValues(source).Inc()
	s.logger.Warn("source fetch failed, using empty list", "source", source, "error", err)
}
