package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/session"
)

var _ session.Archiver = (*Writer)(nil)

type memStore struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{} // when set, Append waits on it
	fail    bool
}

func (m *memStore) Append(_ context.Context, r Record) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.records = append(m.records, r)
	return nil
}

func (m *memStore) History(context.Context, int64) ([]engine.Event, error) { return nil, nil }
func (m *memStore) Close() error                                          { return nil }

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestWriter_WritesInOrder(t *testing.T) {
	store := &memStore{}
	w := NewWriter(store, 16, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for seq := 1; seq <= 5; seq++ {
		w.Archive(3, engine.Event{Seq: seq, Type: engine.EvtApprovalVoteCast})
	}
	require.Eventually(t, func() bool { return store.len() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for i, r := range store.records {
		assert.Equal(t, int64(3), r.SessionID)
		assert.Equal(t, i+1, r.Event.Seq)
		assert.False(t, r.At.IsZero())
	}
}

func TestWriter_DropsWhenFull(t *testing.T) {
	store := &memStore{}
	w := NewWriter(store, 2, nil)

	// nothing is draining yet
	for seq := 1; seq <= 5; seq++ {
		w.Archive(1, engine.Event{Seq: seq})
	}
	assert.Equal(t, int64(3), w.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx), "flushes and returns once cancelled")
	assert.Equal(t, 2, store.len())
}

func TestWriter_ArchiveNeverBlocks(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	w := NewWriter(store, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	finished := make(chan struct{})
	go func() {
		for seq := 1; seq <= 50; seq++ {
			w.Archive(1, engine.Event{Seq: seq})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Archive blocked on a stalled store")
	}
	assert.Positive(t, w.Dropped())

	close(store.block)
	cancel()
	require.NoError(t, <-done)
}

func TestWriter_StoreErrorsAreLogged(t *testing.T) {
	store := &memStore{fail: true}
	w := NewWriter(store, 4, zaptest.NewLogger(t))
	w.Archive(1, engine.Event{Seq: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.Run(ctx))
	assert.Zero(t, store.len())
}
