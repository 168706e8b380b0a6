package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cqrscommands "github.com/danghamo/isoboard/internal/cqrs"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/pkg/logger"
)

func TestBoardFlusher_Flush(t *testing.T) {
	svc, _ := newTestService(t, 10, 10)
	ctx := context.Background()

	t.Run("should stay quiet while the board is clean", func(t *testing.T) {
		pub := new(MockEventPublisher)
		flusher := NewBoardFlusher(logger.NewNop(), svc, pub, 0)

		published, err := flusher.Flush(ctx)
		require.NoError(t, err)
		assert.False(t, published)
		pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("should publish stats once per batch of changes", func(t *testing.T) {
		pub := new(MockEventPublisher)
		pub.On("Publish", ctx, mock.MatchedBy(func(e *cqrscommands.BoardStatsEvent) bool {
			return e.Version == 2 && e.Stats.TileCount == 2 && e.Width == 10 && e.Height == 10
		})).Return(nil).Once()
		flusher := NewBoardFlusher(logger.NewNop(), svc, pub, 0)

		_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
		require.NoError(t, err)
		_, _, err = svc.Place(tile("b", "tree"), shared.NewCell(8, 8))
		require.NoError(t, err)

		published, err := flusher.Flush(ctx)
		require.NoError(t, err)
		assert.True(t, published)

		published, err = flusher.Flush(ctx)
		require.NoError(t, err)
		assert.False(t, published)
		pub.AssertExpectations(t)
	})

	t.Run("should wrap publish failures", func(t *testing.T) {
		pub := new(MockEventPublisher)
		pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus closed"))
		flusher := NewBoardFlusher(logger.NewNop(), svc, pub, 0)

		require.NoError(t, svc.Remove(shared.NewCell(1, 1)))
		_, err := flusher.Flush(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bus closed")
	})
}

func TestBoardFlusher_Loop(t *testing.T) {
	svc, _ := newTestService(t, 10, 10)
	pub := &recordingPublisher{}
	flusher := NewBoardFlusher(logger.NewNop(), svc, pub, 5*time.Millisecond)

	flusher.Start(context.Background())
	flusher.Start(context.Background())

	_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(eventsOf[*cqrscommands.BoardStatsEvent](pub)) == 1
	}, time.Second, 5*time.Millisecond)

	flusher.Stop()
	flusher.Stop()
}

func TestBoardFlusher_StopWithoutStart(t *testing.T) {
	svc, _ := newTestService(t, 10, 10)
	flusher := NewBoardFlusher(logger.NewNop(), svc, &recordingPublisher{}, time.Second)

	done := make(chan struct{})
	go func() {
		flusher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}
