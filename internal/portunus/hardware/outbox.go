// Package hardware holds the controller side of feedback delivery to reader
// hardware.  Readers poll for their feedback; the controller queues it.
package hardware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const DefaultQueueLen = 16

var ErrNoReader = errors.New("reader id is required")

// QueuedFeedback is one feedback instruction waiting for its reader.
type QueuedFeedback struct {
	Feedback types.ReaderFeedback `json:"feedback"`
	QueuedAt time.Time            `json:"queued_at"`
}

// DropCounter is told about feedback rejected on a full queue.
type DropCounter interface {
	FeedbackDropped()
}

// Outbox keeps a bounded FIFO of feedback per reader.
type Outbox struct {
	capacity int
	drops    DropCounter
	now      func() time.Time

	mu     sync.Mutex
	queues map[string]*queue
}

func NewOutbox(capacity int, drops DropCounter) *Outbox {
	if capacity <= 0 {
		capacity = DefaultQueueLen
	}
	return &Outbox{
		capacity: capacity,
		drops:    drops,
		now:      time.Now,
		queues:   make(map[string]*queue),
	}
}

// SendFeedback queues fb for the reader.  It reports false when the
// reader's queue is full.
func (o *Outbox) SendFeedback(ctx context.Context, readerID string, fb types.ReaderFeedback) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return false, ErrNoReader
	}

	ok := o.queueFor(readerID).enqueue(QueuedFeedback{Feedback: fb, QueuedAt: o.now().UTC()})
	if !ok && o.drops != nil {
		o.drops.FeedbackDropped()
	}
	return ok, nil
}

// Drain removes and returns up to max queued items for the reader, oldest
// first.  max <= 0 drains everything.
func (o *Outbox) Drain(readerID string, max int) []QueuedFeedback {
	o.mu.Lock()
	q, ok := o.queues[strings.TrimSpace(readerID)]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	return q.dequeueBatch(max)
}

// Pending reports how many items are waiting for the reader.
func (o *Outbox) Pending(readerID string) int {
	o.mu.Lock()
	q, ok := o.queues[strings.TrimSpace(readerID)]
	o.mu.Unlock()
	if !ok {
		return 0
	}
	return q.len()
}

func (o *Outbox) queueFor(readerID string) *queue {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, ok := o.queues[readerID]
	if !ok {
		q = newQueue(o.capacity)
		o.queues[readerID] = q
	}
	return q
}

type queue struct {
	mu   sync.Mutex
	data []QueuedFeedback
	cap  int
}

func newQueue(capacity int) *queue {
	return &queue{data: make([]QueuedFeedback, 0, capacity), cap: capacity}
}

func (q *queue) enqueue(item QueuedFeedback) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, item)
	return true
}

func (q *queue) dequeueBatch(max int) []QueuedFeedback {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]QueuedFeedback, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}
