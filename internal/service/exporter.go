package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hjemla/easeewatch/internal/models"
)

// Fetcher produces a fresh set of charger states.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]models.ChargerState, error)
}

// SampleWriter persists exported time-series points.
type SampleWriter interface {
	InsertBatch(ctx context.Context, samples []models.Sample) error
}

// Broadcaster pushes fresh states to live subscribers.
type Broadcaster interface {
	BroadcastTelemetry(states []models.ChargerState)
}

// Exporter drives the periodic export: on every tick it runs the fetch
// pipeline directly (it is the producer of freshness, so it bypasses the
// cache) and writes one sample per charger and field to the store. Failures
// are logged and the loop continues.
type Exporter struct {
	logger      *zap.Logger
	fetcher     Fetcher
	samples     SampleWriter
	broadcaster Broadcaster
	interval    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewExporter creates the poll-driven exporter. broadcaster may be nil.
func NewExporter(logger *zap.Logger, fetcher Fetcher, samples SampleWriter, broadcaster Broadcaster, interval time.Duration) *Exporter {
	return &Exporter{
		logger:      logger,
		fetcher:     fetcher,
		samples:     samples,
		broadcaster: broadcaster,
		interval:    interval,
	}
}

// Start launches the poll loop. Calling Start on a running exporter is a no-op.
func (e *Exporter) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Info("Exporter already running, skipping start")
		return
	}
	e.stopCh = make(chan struct{})
	e.running = true
	e.mu.Unlock()

	e.logger.Info("Starting exporter", zap.Duration("interval", e.interval))

	e.wg.Add(1)
	go e.pollLoop(ctx)
}

// Stop stops the poll loop and waits for the in-flight tick to finish.
func (e *Exporter) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	e.logger.Info("Exporter stopped")
}

func (e *Exporter) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	// First tick immediately so data shows up without waiting one interval.
	e.tick(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one fetch-and-export round. Never fatal.
func (e *Exporter) tick(ctx context.Context) {
	states, err := e.fetcher.FetchAll(ctx)
	if err != nil {
		e.logger.Error("Failed to fetch charger states", zap.Error(err))
		return
	}

	now := time.Now()
	samples := make([]models.Sample, 0, len(states)*len(models.Fields))
	for _, state := range states {
		for _, field := range models.Fields {
			samples = append(samples, models.Sample{
				ChargerID:  state.ID,
				Field:      string(field),
				Value:      field.Value(state),
				RecordedAt: now,
			})
		}
	}

	if err := e.samples.InsertBatch(ctx, samples); err != nil {
		e.logger.Warn("Failed to write samples", zap.Error(err), zap.Int("count", len(samples)))
	} else {
		e.logger.Info("Exported samples", zap.Int("chargers", len(states)), zap.Int("samples", len(samples)))
	}

	if e.broadcaster != nil {
		e.broadcaster.BroadcastTelemetry(states)
	}
}
