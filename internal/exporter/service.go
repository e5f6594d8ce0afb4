package exporter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgewatt/powerexporter/internal/broker"
	"github.com/edgewatt/powerexporter/internal/collector"
	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
	"github.com/edgewatt/powerexporter/internal/metrics"
)

// reloadWait bounds how long a management reload request waits for the
// run loop to pick it up and answer.
const reloadWait = 30 * time.Second

// Config wires a Service together. NewCollector may be overridden by
// tests; it defaults to the device-family factory.
type Config struct {
	Settings     *config.Settings
	Resolver     *config.Resolver
	Broker       *broker.Broker
	NewCollector func(cfg *config.Device, rpc collector.StatusClient) (collector.Collector, error)
}

// active bundles the configuration, its source and the collector built
// from it. It is swapped as one unit so no reader ever observes a
// half-applied reload.
type active struct {
	cfg       *config.Device
	source    config.Source
	collector collector.Collector
}

// snapshot is the latest cycle's filtered sample set, as served on the
// metrics port.
type snapshot struct {
	samples    map[string]float64
	deviceType string
	takenAt    time.Time
}

type reloadResult struct {
	source config.Source
	count  int
	err    error
}

// Service runs the collection cycle: resolve configuration once at
// startup, then collect on a ticker, filter through the registry and
// publish the filtered samples for scraping. Reloads re-run the
// resolution sequence without restarting the process.
type Service struct {
	settings     *config.Settings
	resolver     *config.Resolver
	broker       *broker.Broker
	registry     metrics.Registry
	newCollector func(cfg *config.Device, rpc collector.StatusClient) (collector.Collector, error)

	active atomic.Pointer[active]
	latest atomic.Pointer[snapshot]

	// writeMu serializes the writers of active and the registry
	// reseed/persist paths; readers go through the atomics.
	writeMu  sync.Mutex
	reloadCh chan chan reloadResult

	startedAt time.Time

	stateMu        sync.Mutex
	lastCollection time.Time
	lastError      string
}

// NewService resolves the startup configuration and builds the first
// collector. Configuration errors here are fatal: with no resolvable
// configuration the process has nothing to do.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	s := &Service{
		settings:     cfg.Settings,
		resolver:     cfg.Resolver,
		broker:       cfg.Broker,
		newCollector: cfg.NewCollector,
		reloadCh:     make(chan chan reloadResult),
		startedAt:    time.Now(),
	}
	if s.newCollector == nil {
		s.newCollector = collector.New
	}

	device, source, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	col, err := s.newCollector(device, s.broker)
	if err != nil {
		return nil, err
	}

	s.registry = metrics.NewRegistry(device.Metrics)
	s.active.Store(&active{cfg: device, source: source, collector: col})
	logger.Info().
		Str("device_type", device.DeviceType).
		Str("source", string(source)).
		Int("metrics", s.registry.Count()).
		Msg("Exporter initialized")

	return s, nil
}

// ActiveConfig returns a copy of the configuration currently in effect.
func (s *Service) ActiveConfig() *config.Device {
	return s.active.Load().cfg.Clone()
}

// Run drives the collection cycle until ctx is cancelled. Reload
// requests are applied between cycles by the same goroutine, so the
// ticker interval can follow the configuration.
func (s *Service) Run(ctx context.Context) error {
	interval := s.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Prime the exposition so the first scrape is not empty.
	s.collectOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.collectOnce(ctx)
		case respCh := <-s.reloadCh:
			result := s.applyReload(ctx)
			respCh <- result
			if result.err != nil {
				continue
			}
			if next := s.interval(); next != interval {
				logger.Info().Dur("interval", next).Msg("Collection interval updated")
				interval = next
				ticker.Reset(interval)
			}
			s.collectOnce(ctx)
		}
	}
}

func (s *Service) interval() time.Duration {
	return time.Duration(s.active.Load().cfg.Interval) * time.Second
}

// collectOnce runs one collection cycle. A failing cycle keeps the
// previous exposition snapshot; new metric names are recorded disabled
// and the grown table is persisted.
func (s *Service) collectOnce(ctx context.Context) {
	act := s.active.Load()

	samples, err := act.collector.Collect(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("device_type", act.cfg.DeviceType).Msg("Collection cycle failed")
		s.recordCycle(err)
		return
	}

	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)

	if added := s.registry.ReconcileDiscovered(names); len(added) > 0 {
		logger.Info().Strs("metrics", added).Msg("Discovered new metrics (disabled by default)")
		s.persistRegistry(act)
	}

	filtered := s.registry.Filter(samples)
	s.latest.Store(&snapshot{
		samples:    filtered,
		deviceType: act.cfg.DeviceType,
		takenAt:    time.Now(),
	})
	s.recordCycle(nil)

	logger.Debug().
		Int("collected", len(samples)).
		Int("exposed", len(filtered)).
		Msg("Collection cycle complete")
}

// persistRegistry writes the current registry table into the active
// configuration's local mirror and syncs it upstream, best effort.
func (s *Service) persistRegistry(act *active) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cfg := act.cfg.Clone()
	cfg.Metrics = s.registry.Snapshot()
	if err := s.resolver.PersistAndSync(cfg); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist metrics table")
	}
}

// EnableMetrics applies enabled-state updates and persists the result.
// Names not discovered yet are inserted with the requested state, so an
// operator can pre-declare metrics before the device first reports
// them.
func (s *Service) EnableMetrics(updates map[string]bool) (int, map[string]bool) {
	applied := s.registry.SetEnabled(updates)
	s.persistRegistry(s.active.Load())

	return applied, s.registry.Snapshot()
}

// MetricsList reports the registry table plus the active device type
// and configuration source.
func (s *Service) MetricsList() (map[string]bool, string, config.Source) {
	act := s.active.Load()

	return s.registry.Snapshot(), act.cfg.DeviceType, act.source
}

// Reload asks the run loop to re-run the configuration resolution and
// waits for the outcome.
func (s *Service) Reload(ctx context.Context) (config.Source, int, error) {
	errFactory := errors.New()

	respCh := make(chan reloadResult, 1)
	select {
	case s.reloadCh <- respCh:
	case <-time.After(reloadWait):
		return "", 0, errFactory.New(ErrReloadTimeout)
	case <-ctx.Done():
		return "", 0, errFactory.Wrap(ErrReloadTimeout, ctx.Err())
	}

	select {
	case result := <-respCh:
		return result.source, result.count, result.err
	case <-time.After(reloadWait):
		return "", 0, errFactory.New(ErrReloadTimeout)
	case <-ctx.Done():
		return "", 0, errFactory.Wrap(ErrReloadTimeout, ctx.Err())
	}
}

// applyReload re-resolves configuration and swaps the active collector
// if the device family changed. Any failure keeps the previous
// configuration and collector running.
func (s *Service) applyReload(ctx context.Context) reloadResult {
	device, source, err := s.resolver.Resolve(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Reload failed, keeping current configuration")
		return reloadResult{err: err}
	}

	old := s.active.Load()
	next := &active{cfg: device, source: source, collector: old.collector}

	if !strings.EqualFold(old.cfg.DeviceType, device.DeviceType) {
		col, err := s.newCollector(device, s.broker)
		if err != nil {
			logger.Warn().Err(err).Str("device_type", device.DeviceType).Msg("Reload failed to build collector, keeping current one")
			return reloadResult{err: err}
		}
		next.collector = col
	}

	if old.cfg.Port != device.Port {
		logger.Warn().Int("old", old.cfg.Port).Int("new", device.Port).Msg("Metrics port change requires a restart")
	}
	if old.cfg.ReloadPort != device.ReloadPort {
		logger.Warn().Int("old", old.cfg.ReloadPort).Int("new", device.ReloadPort).Msg("Management port change requires a restart")
	}

	s.writeMu.Lock()
	s.registry.Reset(device.Metrics)
	s.active.Store(next)
	s.writeMu.Unlock()

	if next.collector != old.collector {
		if err := old.collector.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close replaced collector")
		}
		logger.Info().
			Str("from", old.cfg.DeviceType).
			Str("to", device.DeviceType).
			Msg("Collector swapped")
	}

	logger.Info().
		Str("source", string(source)).
		Int("metrics", s.registry.Count()).
		Msg("Configuration reloaded")

	return reloadResult{source: source, count: s.registry.Count()}
}

// ReadDevice polls one connected device on demand, outside the regular
// cycle.
func (s *Service) ReadDevice(ctx context.Context, deviceID string) (map[string]float64, error) {
	timeout := config.DefaultShellyRequestTimeout * time.Second
	if cfg := s.active.Load().cfg; cfg.Shelly != nil && cfg.Shelly.RequestTimeout > 0 {
		timeout = time.Duration(cfg.Shelly.RequestTimeout) * time.Second
	}

	result, err := s.broker.Request(ctx, deviceID, "Switch.GetStatus", map[string]int{"id": 0}, timeout)
	if err != nil {
		return nil, err
	}

	return collector.ParseSwitchStatus(result)
}

// Health summarizes the service state for the management surface.
type Health struct {
	Status         string  `json:"status"`
	DeviceID       string  `json:"device_id"`
	DeviceType     string  `json:"device_type"`
	Collector      string  `json:"collector"`
	Source         string  `json:"source"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	LastCollection string  `json:"last_collection,omitempty"`
	LastError      string  `json:"last_error,omitempty"`
	MetricsCount   int     `json:"metrics_count"`
	EnabledMetrics int     `json:"enabled_metrics"`
}

func (s *Service) Health() Health {
	act := s.active.Load()

	s.stateMu.Lock()
	lastCollection := s.lastCollection
	lastError := s.lastError
	s.stateMu.Unlock()

	status := "healthy"
	switch {
	case lastCollection.IsZero():
		status = "starting"
	case lastError != "":
		status = "degraded"
	}

	h := Health{
		Status:         status,
		DeviceID:       s.settings.DeviceID,
		DeviceType:     act.cfg.DeviceType,
		Collector:      fmt.Sprintf("%T", act.collector),
		Source:         string(act.source),
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		LastError:      lastError,
		MetricsCount:   s.registry.Count(),
		EnabledMetrics: s.registry.EnabledCount(),
	}
	if !lastCollection.IsZero() {
		h.LastCollection = lastCollection.Format(time.RFC3339)
	}

	return h
}

func (s *Service) recordCycle(err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastCollection = time.Now()
	s.lastError = ""
}

// Close releases the active collector.
func (s *Service) Close() error {
	return s.active.Load().collector.Close()
}
