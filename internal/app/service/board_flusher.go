package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cqrscommands "github.com/danghamo/isoboard/internal/cqrs"
	"github.com/danghamo/isoboard/pkg/logger"
)

// DefaultFlushInterval polls the dirty flag at display rate
const DefaultFlushInterval = time.Second / 60

// BoardFlusher is the pull side of change propagation: it polls the board's
// dirty flag and publishes index diagnostics once per batch of mutations.
type BoardFlusher struct {
	logger    *logger.Logger
	svc       *BoardService
	publisher cqrscommands.EventPublisher
	interval  time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewBoardFlusher creates a flusher. A non-positive interval selects DefaultFlushInterval.
func NewBoardFlusher(log *logger.Logger, svc *BoardService, publisher cqrscommands.EventPublisher, interval time.Duration) *BoardFlusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &BoardFlusher{
		logger:    log.WithComponent("board-flusher"),
		svc:       svc,
		publisher: publisher,
		interval:  interval,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins polling in the background until ctx ends or Stop is called
func (f *BoardFlusher) Start(ctx context.Context) {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	f.logger.Info("Starting board flusher", zap.Duration("interval", f.interval))
	go f.loop(ctx)
}

// Stop halts polling and waits for the loop to exit. It is safe to call more than once.
func (f *BoardFlusher) Stop() {
	f.stopOnce.Do(func() {
		f.logger.Info("Stopping board flusher")
		close(f.stopChan)
	})
	if f.started.Load() {
		<-f.done
	}
}

func (f *BoardFlusher) loop(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopChan:
			return
		case <-ticker.C:
			if _, err := f.Flush(ctx); err != nil {
				f.logger.Error("Failed to flush board stats", zap.Error(err))
			}
		}
	}
}

// Flush publishes a BoardStatsEvent if the board changed since the last flush.
// It reports whether an event was published.
func (f *BoardFlusher) Flush(ctx context.Context) (bool, error) {
	version, dirty := f.svc.TakeDirty()
	if !dirty {
		return false, nil
	}

	width, height := f.svc.Size()
	event := &cqrscommands.BoardStatsEvent{
		Version:   version,
		Width:     width,
		Height:    height,
		Stats:     f.svc.Stats(),
		Timestamp: time.Now(),
		RequestID: fmt.Sprintf("flush-%d-%s", version, time.Now().Format("150405.000")),
	}
	if err := f.publisher.Publish(ctx, event); err != nil {
		return false, fmt.Errorf("publish stats for version %d: %w", version, err)
	}

	f.logger.Debug("Flushed board stats",
		zap.Uint64("version", version),
		zap.Int("tiles", event.Stats.TileCount))
	return true, nil
}
