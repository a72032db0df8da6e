// Package pin assembles keypad presses into completed PIN reads, one
// collection per reader.
package pin

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const (
	DefaultTimeout = 3 * time.Second

	lookupTimeout = 2 * time.Second
)

// ReaderLookup resolves the display name attached to completed reads.
type ReaderLookup interface {
	GetReader(ctx context.Context, readerID string) (types.Reader, error)
}

type (
	CompletionHandler func(types.PinReadEvent)
	DigitHandler      func(types.DigitReceived)
)

// Collector owns the per-reader PIN collections.
//
// Each collection has its own mutex; the map lock is never held while a
// collection lock is being acquired.
type Collector struct {
	timeout    time.Duration
	maxLength  int
	readers    ReaderLookup
	onComplete CompletionHandler
	onDigit    DigitHandler
	log        *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	active map[string]*collection
	closed bool
}

type collection struct {
	readerID string

	mu     sync.Mutex
	buf    []byte
	timer  *time.Timer
	gen    uint64
	closed bool
}

type Option func(*Collector)

func WithTimeout(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxLength completes a collection as soon as it holds n digits.
// Zero disables the limit.
func WithMaxLength(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

func WithDigitHandler(h DigitHandler) Option { return func(c *Collector) { c.onDigit = h } }
func WithLogger(l *slog.Logger) Option       { return func(c *Collector) { c.log = l } }
func WithClock(now func() time.Time) Option  { return func(c *Collector) { c.now = now } }

func NewCollector(readers ReaderLookup, onComplete CompletionHandler, opts ...Option) *Collector {
	c := &Collector{
		timeout:    DefaultTimeout,
		readers:    readers,
		onComplete: onComplete,
		now:        time.Now,
		active:     make(map[string]*collection),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func isKey(r rune) bool {
	return (r >= '0' && r <= '9') || r == '*' || r == '#'
}

// AddDigit feeds one keypad press for readerID and reports whether it
// completed the PIN.  Digits append, '*' clears the buffer, '#' completes.
// Any other character is ignored.
func (c *Collector) AddDigit(readerID string, digit rune) bool {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return false
	}
	if !isKey(digit) {
		c.notifyDigit(readerID, digit, false, c.Length(readerID))
		return false
	}

	for {
		col, ok := c.acquire(readerID)
		if !ok {
			return false
		}

		col.mu.Lock()
		if col.closed {
			// Completed or cleared between lookup and lock; start over with a
			// fresh collection.
			col.mu.Unlock()
			continue
		}

		var (
			done   bool
			reason types.CompletionReason
		)
		switch {
		case digit == '#':
			done, reason = true, types.CompletionPoundKey
		case digit == '*':
			col.buf = col.buf[:0]
			c.armLocked(col)
		default:
			col.buf = append(col.buf, byte(digit))
			if c.maxLength > 0 && len(col.buf) >= c.maxLength {
				done, reason = true, types.CompletionMaxLength
			} else {
				c.armLocked(col)
			}
		}

		length := len(col.buf)
		var pin string
		if done {
			pin = string(col.buf)
			c.sealLocked(col)
		}
		col.mu.Unlock()

		if done {
			c.release(col)
		}
		c.notifyDigit(readerID, digit, true, length)
		if done {
			c.complete(readerID, pin, reason)
		}
		return done
	}
}

// ClearPin discards the reader's collection without completing it.
func (c *Collector) ClearPin(readerID string) {
	readerID = strings.TrimSpace(readerID)
	c.mu.Lock()
	col, ok := c.active[readerID]
	if ok {
		delete(c.active, readerID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	col.mu.Lock()
	c.sealLocked(col)
	col.mu.Unlock()
}

// Length reports how many digits the reader's live collection holds.
func (c *Collector) Length(readerID string) int {
	readerID = strings.TrimSpace(readerID)
	c.mu.Lock()
	col, ok := c.active[readerID]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.closed {
		return 0
	}
	return len(col.buf)
}

// ActiveReaders lists readers with a collection in progress.
func (c *Collector) ActiveReaders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close cancels every pending timer without firing completions.  Later
// AddDigit calls are ignored.
func (c *Collector) Close() {
	c.mu.Lock()
	c.closed = true
	cols := make([]*collection, 0, len(c.active))
	for _, col := range c.active {
		cols = append(cols, col)
	}
	c.active = make(map[string]*collection)
	c.mu.Unlock()

	for _, col := range cols {
		col.mu.Lock()
		c.sealLocked(col)
		col.mu.Unlock()
	}
}

func (c *Collector) acquire(readerID string) (*collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	col, ok := c.active[readerID]
	if !ok {
		col = &collection{readerID: readerID}
		c.active[readerID] = col
	}
	return col, true
}

// release removes col from the map only if it is still the live collection
// for its reader.
func (c *Collector) release(col *collection) {
	c.mu.Lock()
	if c.active[col.readerID] == col {
		delete(c.active, col.readerID)
	}
	c.mu.Unlock()
}

// armLocked (re)starts the inactivity timer.  A timer from an earlier
// generation that already fired sees a stale generation and does nothing.
func (c *Collector) armLocked(col *collection) {
	col.gen++
	gen := col.gen
	if col.timer != nil {
		col.timer.Stop()
	}
	col.timer = time.AfterFunc(c.timeout, func() { c.expire(col, gen) })
}

func (c *Collector) sealLocked(col *collection) {
	col.closed = true
	col.gen++
	if col.timer != nil {
		col.timer.Stop()
		col.timer = nil
	}
}

func (c *Collector) expire(col *collection, gen uint64) {
	col.mu.Lock()
	if col.closed || col.gen != gen {
		col.mu.Unlock()
		return
	}
	pin := string(col.buf)
	c.sealLocked(col)
	col.mu.Unlock()

	c.release(col)
	c.complete(col.readerID, pin, types.CompletionTimeout)
}

func (c *Collector) complete(readerID, pin string, reason types.CompletionReason) {
	ev := types.PinReadEvent{
		ReaderID:         readerID,
		ReaderName:       c.readerName(readerID),
		Pin:              pin,
		Timestamp:        c.now().UTC(),
		CompletionReason: reason,
	}
	c.log.Debug("pin collection complete", "reader_id", readerID, "reason", string(reason), "length", len(pin))

	if c.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("pin completion handler panicked", "reader_id", readerID, "panic", r)
		}
	}()
	c.onComplete(ev)
}

func (c *Collector) readerName(readerID string) string {
	if c.readers == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	r, err := c.readers.GetReader(ctx, readerID)
	if err != nil {
		c.log.Warn("reader lookup failed for pin read", "reader_id", readerID, "error", err)
		return ""
	}
	return r.Name
}

func (c *Collector) notifyDigit(readerID string, digit rune, accepted bool, length int) {
	if c.onDigit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("digit handler panicked", "reader_id", readerID, "panic", r)
		}
	}()
	c.onDigit(types.DigitReceived{
		ReaderID:  readerID,
		Digit:     string(digit),
		Accepted:  accepted,
		Length:    length,
		Timestamp: c.now().UTC(),
	})
}
