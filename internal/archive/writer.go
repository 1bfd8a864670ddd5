package archive

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/avalon-server/internal/engine"
)

// Writer moves records from sessions to a Store on its own goroutine.
type Writer struct {
	store   Store
	queue   chan Record
	log     *zap.Logger
	dropped atomic.Int64
	now     func() time.Time
}

func NewWriter(store Store, buffer int, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Writer{
		store: store,
		queue: make(chan Record, buffer),
		log:   logger.Named("archive"),
		now:   time.Now,
	}
}

// Archive queues e for writing. It never blocks: when the queue is full the
// record is dropped and counted.
func (w *Writer) Archive(sessionID int64, e engine.Event) {
	select {
	case w.queue <- Record{SessionID: sessionID, Event: e, At: w.now()}:
	default:
		n := w.dropped.Add(1)
		w.log.Warn("archive queue full, record dropped",
			zap.Int64("session", sessionID), zap.Int("seq", e.Seq), zap.Int64("dropped", n))
	}
}

// Dropped reports how many records were lost to a full queue.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Run writes queued records until ctx is cancelled, then flushes whatever is
// still queued and returns.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case r := <-w.queue:
			w.write(ctx, r)
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	for {
		select {
		case r := <-w.queue:
			w.write(ctx, r)
		default:
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, r Record) {
	if err := w.store.Append(ctx, r); err != nil {
		w.log.Error("archive append failed",
			zap.Int64("session", r.SessionID), zap.Int("seq", r.Event.Seq), zap.Error(err))
	}
}
