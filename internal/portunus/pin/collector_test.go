package pin_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/pin"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ── helpers ────────────────────────────────────────────────────────────────

const testTimeout = 100 * time.Millisecond

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects completions and digit notifications.
type recorder struct {
	mu     sync.Mutex
	events []types.PinReadEvent
	digits []types.DigitReceived
	ch     chan types.PinReadEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan types.PinReadEvent, 64)}
}

func (r *recorder) complete(ev types.PinReadEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) digit(d types.DigitReceived) {
	r.mu.Lock()
	r.digits = append(r.digits, d)
	r.mu.Unlock()
}

func (r *recorder) Events() []types.PinReadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.PinReadEvent(nil), r.events...)
}

func (r *recorder) Digits() []types.DigitReceived {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.DigitReceived(nil), r.digits...)
}

func (r *recorder) wait(t *testing.T, within time.Duration) types.PinReadEvent {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(within):
		t.Fatalf("no completion within %v", within)
		return types.PinReadEvent{}
	}
}

func (r *recorder) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected completion %+v", ev)
	case <-time.After(within):
	}
}

func newCollector(t *testing.T, rec *recorder, opts ...pin.Option) *pin.Collector {
	t.Helper()
	readers := memory.NewReaderStore(
		types.Reader{ID: "R1", Name: "Front Door", Enabled: true},
		types.Reader{ID: "R2", Name: "Server Room", Enabled: true},
	)
	opts = append([]pin.Option{
		pin.WithTimeout(testTimeout),
		pin.WithLogger(discardLogger()),
		pin.WithDigitHandler(rec.digit),
	}, opts...)
	c := pin.NewCollector(readers, rec.complete, opts...)
	t.Cleanup(c.Close)
	return c
}

func feed(c *pin.Collector, readerID, keys string) (completed bool) {
	for _, k := range keys {
		completed = c.AddDigit(readerID, k)
	}
	return completed
}

// ═══════════════════════════════════════════════════════════════════════════
// Completion by pound key
// ═══════════════════════════════════════════════════════════════════════════

func TestCollector_PoundKeyCompletes(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	for _, k := range "1234" {
		if c.AddDigit("R2", k) {
			t.Fatalf("digit %q must not complete", k)
		}
	}
	if !c.AddDigit("R2", '#') {
		t.Fatal("expected # to complete")
	}

	ev := rec.wait(t, time.Second)
	if ev.Pin != "1234" {
		t.Errorf("expected pin 1234, got %q", ev.Pin)
	}
	if ev.CompletionReason != types.CompletionPoundKey {
		t.Errorf("expected PoundKey, got %s", ev.CompletionReason)
	}
	if ev.ReaderName != "Server Room" {
		t.Errorf("expected reader name Server Room, got %q", ev.ReaderName)
	}

	// The timer must not fire a second completion.
	rec.expectNone(t, 3*testTimeout)
	if n := len(rec.Events()); n != 1 {
		t.Errorf("expected exactly 1 event, got %d", n)
	}
	if len(c.ActiveReaders()) != 0 {
		t.Errorf("expected no active collections, got %v", c.ActiveReaders())
	}
}

func TestCollector_PoundKeyOnEmptyBuffer(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	if !c.AddDigit("R1", '#') {
		t.Fatal("expected # to complete")
	}
	ev := rec.wait(t, time.Second)
	if ev.Pin != "" || ev.CompletionReason != types.CompletionPoundKey {
		t.Errorf("unexpected event %+v", ev)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Completion by timeout
// ═══════════════════════════════════════════════════════════════════════════

func TestCollector_DefaultTimeout(t *testing.T) {
	if pin.DefaultTimeout != 3*time.Second {
		t.Errorf("expected 3s default inactivity window, got %v", pin.DefaultTimeout)
	}
}

func TestCollector_SingleDigitTimesOut(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	c.AddDigit("R1", '9')
	ev := rec.wait(t, 10*testTimeout)

	if ev.Pin != "9" {
		t.Errorf("expected pin 9, got %q", ev.Pin)
	}
	if ev.CompletionReason != types.CompletionTimeout {
		t.Errorf("expected Timeout, got %s", ev.CompletionReason)
	}
	if ev.ReaderName != "Front Door" {
		t.Errorf("expected Front Door, got %q", ev.ReaderName)
	}
}

func TestCollector_TimeoutCarriesExactDigits(t *testing.T) {
	sequences := []struct {
		keys string
		want string
	}{
		{"1", "1"},
		{"0000", "0000"},
		{"12x3", "123"},
		{"98*76", "76"},
		{"5*", ""},
	}

	for _, tt := range sequences {
		t.Run(tt.keys, func(t *testing.T) {
			rec := newRecorder()
			c := newCollector(t, rec)

			feed(c, "R1", tt.keys)
			ev := rec.wait(t, 10*testTimeout)
			if ev.Pin != tt.want {
				t.Errorf("expected %q, got %q", tt.want, ev.Pin)
			}
			if ev.CompletionReason != types.CompletionTimeout {
				t.Errorf("expected Timeout, got %s", ev.CompletionReason)
			}
		})
	}
}

func TestCollector_DigitResetsTimer(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec, pin.WithTimeout(300*time.Millisecond))

	c.AddDigit("R1", '1')
	time.Sleep(200 * time.Millisecond)
	c.AddDigit("R1", '2')
	time.Sleep(200 * time.Millisecond)

	// 400ms since the first digit but only 200ms since the last.
	if n := len(rec.Events()); n != 0 {
		t.Fatalf("expected no completion yet, got %d", n)
	}
	ev := rec.wait(t, time.Second)
	if ev.Pin != "12" {
		t.Errorf("expected 12, got %q", ev.Pin)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Clear, ignore, max length
// ═══════════════════════════════════════════════════════════════════════════

func TestCollector_StarClearsWithoutCompleting(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	if feed(c, "R1", "12*") {
		t.Fatal("* must not complete")
	}
	if n := c.Length("R1"); n != 0 {
		t.Errorf("expected empty buffer after *, got %d", n)
	}
	if !feed(c, "R1", "34#") {
		t.Fatal("expected # to complete")
	}

	ev := rec.wait(t, time.Second)
	if ev.Pin != "34" {
		t.Errorf("expected only post-clear digits, got %q", ev.Pin)
	}
}

func TestCollector_InvalidCharacterIgnored(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	if c.AddDigit("R1", 'A') {
		t.Fatal("invalid character must not complete")
	}
	if len(c.ActiveReaders()) != 0 {
		t.Errorf("invalid character must not start a collection")
	}
	rec.expectNone(t, 3*testTimeout)

	digits := rec.Digits()
	if len(digits) != 1 || digits[0].Accepted || digits[0].Digit != "A" {
		t.Errorf("expected one rejected digit notification, got %+v", digits)
	}
}

func TestCollector_DigitNotifications(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	feed(c, "R1", "12#")
	rec.wait(t, time.Second)

	digits := rec.Digits()
	if len(digits) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(digits))
	}
	wantLen := []int{1, 2, 2}
	for i, d := range digits {
		if !d.Accepted {
			t.Errorf("notification %d: expected accepted", i)
		}
		if d.Length != wantLen[i] {
			t.Errorf("notification %d: expected length %d, got %d", i, wantLen[i], d.Length)
		}
	}
}

func TestCollector_MaxLengthCompletes(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec, pin.WithMaxLength(4))

	if feed(c, "R1", "123") {
		t.Fatal("must not complete before max length")
	}
	if !c.AddDigit("R1", '4') {
		t.Fatal("expected 4th digit to complete")
	}
	ev := rec.wait(t, time.Second)
	if ev.Pin != "1234" || ev.CompletionReason != types.CompletionMaxLength {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestCollector_ClearPinCancels(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	feed(c, "R1", "12")
	c.ClearPin("R1")

	rec.expectNone(t, 3*testTimeout)
	if len(c.ActiveReaders()) != 0 {
		t.Errorf("expected no active collection after ClearPin")
	}

	// A new collection starts from scratch.
	feed(c, "R1", "7#")
	if ev := rec.wait(t, time.Second); ev.Pin != "7" {
		t.Errorf("expected 7, got %q", ev.Pin)
	}
}

func TestCollector_ClearPinTrimsReaderID(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	feed(c, "R1", "12")
	if n := c.Length(" R1 "); n != 2 {
		t.Errorf("expected padded id to see 2 digits, got %d", n)
	}
	c.ClearPin(" R1\t")

	rec.expectNone(t, 3*testTimeout)
	if len(c.ActiveReaders()) != 0 {
		t.Errorf("expected padded ClearPin to cancel the collection")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Timer expiry racing digit arrival
// ═══════════════════════════════════════════════════════════════════════════

// Every digit must end up in exactly one completed PIN even when timers keep
// expiring while other goroutines are appending to the same reader.
func TestCollector_ExpiryRacingDigits(t *testing.T) {
	var (
		mu     sync.Mutex
		events []types.PinReadEvent
	)
	c := pin.NewCollector(nil, func(ev types.PinReadEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, pin.WithTimeout(time.Millisecond), pin.WithLogger(discardLogger()))
	defer c.Close()

	const (
		writers  = 10
		perWrite = 200
	)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(d rune) {
			defer wg.Done()
			for i := 0; i < perWrite; i++ {
				c.AddDigit("R1", d)
				if i%7 == 0 {
					time.Sleep(time.Millisecond)
				}
				if n := len(c.ActiveReaders()); n > 1 {
					t.Errorf("expected at most one collection, got %d", n)
				}
			}
		}(rune('0' + w))
	}
	wg.Wait()

	total := func() int {
		mu.Lock()
		defer mu.Unlock()
		n := 0
		for _, ev := range events {
			n += len(ev.Pin)
		}
		return n
	}
	deadline := time.Now().Add(2 * time.Second)
	for total() < writers*perWrite && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give a duplicate completion time to show up.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	counts := make(map[rune]int)
	for _, ev := range events {
		if ev.CompletionReason != types.CompletionTimeout {
			t.Errorf("unexpected completion reason %q", ev.CompletionReason)
		}
		if ev.Pin == "" {
			t.Error("a collection only exists once a digit arrives; got an empty PIN")
		}
		for _, d := range ev.Pin {
			counts[d]++
		}
	}
	for w := 0; w < writers; w++ {
		d := rune('0' + w)
		if counts[d] != perWrite {
			t.Errorf("digit %c: expected %d in completed PINs, got %d", d, perWrite, counts[d])
		}
	}
	if got := c.ActiveReaders(); len(got) != 0 {
		t.Errorf("expected no live collection after all timers fired, got %v", got)
	}
}

// A digit that re-arms the timer leaves the earlier timer's generation stale,
// so only the latest deadline completes the PIN.
func TestCollector_StaleTimerDoesNothing(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	c.AddDigit("R1", '1')
	time.Sleep(testTimeout * 3 / 4)
	c.AddDigit("R1", '2')
	time.Sleep(testTimeout / 2)

	if got := len(rec.Events()); got != 0 {
		t.Fatalf("expected the first timer to be superseded, got %d completions", got)
	}
	if ev := rec.wait(t, time.Second); ev.Pin != "12" {
		t.Errorf("expected 12, got %q", ev.Pin)
	}
	rec.expectNone(t, 2*testTimeout)
}

// ═══════════════════════════════════════════════════════════════════════════
// Reader lookup, isolation, shutdown
// ═══════════════════════════════════════════════════════════════════════════

type failingLookup struct{}

func (failingLookup) GetReader(context.Context, string) (types.Reader, error) {
	return types.Reader{}, errors.New("database is locked")
}

func TestCollector_LookupFailureGivesEmptyName(t *testing.T) {
	rec := newRecorder()
	c := pin.NewCollector(failingLookup{}, rec.complete, pin.WithLogger(discardLogger()))
	defer c.Close()

	feed(c, "R1", "55#")
	ev := rec.wait(t, time.Second)
	if ev.ReaderName != "" {
		t.Errorf("expected empty name, got %q", ev.ReaderName)
	}
	if ev.Pin != "55" {
		t.Errorf("expected 55, got %q", ev.Pin)
	}
}

func TestCollector_UnknownReaderGivesEmptyName(t *testing.T) {
	rec := newRecorder()
	c := pin.NewCollector(memory.NewReaderStore(), rec.complete, pin.WithLogger(discardLogger()))
	defer c.Close()

	feed(c, "ghost", "1#")
	ev := rec.wait(t, time.Second)
	if ev.ReaderName != "" {
		t.Errorf("expected empty name, got %q", ev.ReaderName)
	}
}

func TestCollector_ReadersAreIndependent(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	c.AddDigit("R1", '1')
	c.AddDigit("R2", '9')
	c.AddDigit("R1", '2')
	c.AddDigit("R2", '#')

	ev := rec.wait(t, time.Second)
	if ev.ReaderID != "R2" || ev.Pin != "9" {
		t.Errorf("unexpected R2 event %+v", ev)
	}
	if got := c.ActiveReaders(); len(got) != 1 || got[0] != "R1" {
		t.Errorf("expected R1 still collecting, got %v", got)
	}
	c.AddDigit("R1", '#')
	if ev := rec.wait(t, time.Second); ev.Pin != "12" {
		t.Errorf("expected R1 pin 12, got %q", ev.Pin)
	}
}

func TestCollector_ConcurrentReaders(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec, pin.WithTimeout(5*time.Second))

	const readers = 32
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			feed(c, fmt.Sprintf("reader-%02d", i), "4321#")
		}(i)
	}
	wg.Wait()

	events := rec.Events()
	if len(events) != readers {
		t.Fatalf("expected %d completions, got %d", readers, len(events))
	}
	for _, ev := range events {
		if ev.Pin != "4321" {
			t.Errorf("%s: expected 4321, got %q", ev.ReaderID, ev.Pin)
		}
	}
}

func TestCollector_CloseSuppressesCompletion(t *testing.T) {
	rec := newRecorder()
	c := newCollector(t, rec)

	feed(c, "R1", "123")
	c.Close()

	rec.expectNone(t, 3*testTimeout)
	if c.AddDigit("R1", '#') {
		t.Error("AddDigit after Close must be ignored")
	}
}
