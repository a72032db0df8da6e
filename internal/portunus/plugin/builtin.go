package plugin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Factory keys of the plugins shipped with the controller.
const (
	KeyAllowAll      = "allow_all"
	KeyDenyAll       = "deny_all"
	KeyCardAllowlist = "card_allowlist"
	KeyPinAllowlist  = "pin_allowlist"
	KeyTimeWindow    = "time_window"
)

// DefaultCatalog returns a catalog holding the built-in plugins.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Register(KeyAllowAll, func() Plugin { return &constant{name: "Allow All", verdict: true} })
	c.Register(KeyDenyAll, func() Plugin { return &constant{name: "Deny All", verdict: false} })
	c.Register(KeyCardAllowlist, func() Plugin { return &cardAllowlist{} })
	c.Register(KeyPinAllowlist, func() Plugin { return &pinAllowlist{} })
	c.Register(KeyTimeWindow, func() Plugin { return &timeWindow{} })
	return c
}

const builtinVersion = "1.0.0"

// base carries the no-op parts of the lifecycle.
type base struct{}

func (base) Version() string                { return builtinVersion }
func (base) Shutdown(context.Context) error { return nil }

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ── allow_all / deny_all ───────────────────────────────────────────────────

type constant struct {
	base
	name    string
	verdict bool
}

func (p *constant) Name() string { return p.name }
func (p *constant) Description() string {
	if p.verdict {
		return "Approves every card and PIN read"
	}
	return "Denies every card and PIN read"
}
func (p *constant) Init(context.Context, map[string]string) error { return nil }

func (p *constant) EvaluateCard(context.Context, types.CardReadEvent) (bool, error) {
	return p.verdict, nil
}

func (p *constant) EvaluatePin(context.Context, types.PinReadEvent) (bool, error) {
	return p.verdict, nil
}

// ── card_allowlist ─────────────────────────────────────────────────────────

type cardAllowlist struct {
	base
	cards   map[string]struct{}
	minBits int
}

func (p *cardAllowlist) Name() string        { return "Card Allowlist" }
func (p *cardAllowlist) Description() string { return "Approves card numbers on a fixed list" }

func (p *cardAllowlist) Init(_ context.Context, cfg map[string]string) error {
	p.cards = make(map[string]struct{})
	for _, c := range splitList(cfg["cards"]) {
		p.cards[c] = struct{}{}
	}
	if v := strings.TrimSpace(cfg["min_bits"]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("card_allowlist: invalid min_bits %q", v)
		}
		p.minBits = n
	}
	return nil
}

func (p *cardAllowlist) EvaluateCard(_ context.Context, ev types.CardReadEvent) (bool, error) {
	if p.minBits > 0 && ev.BitLength < p.minBits {
		return false, nil
	}
	_, ok := p.cards[strings.TrimSpace(ev.CardNumber)]
	return ok, nil
}

// ── pin_allowlist ──────────────────────────────────────────────────────────

type pinAllowlist struct {
	base
	pins map[string]struct{}
}

func (p *pinAllowlist) Name() string        { return "PIN Allowlist" }
func (p *pinAllowlist) Description() string { return "Approves PINs on a fixed list" }

func (p *pinAllowlist) Init(_ context.Context, cfg map[string]string) error {
	p.pins = make(map[string]struct{})
	for _, pin := range splitList(cfg["pins"]) {
		p.pins[pin] = struct{}{}
	}
	return nil
}

func (p *pinAllowlist) EvaluatePin(_ context.Context, ev types.PinReadEvent) (bool, error) {
	if ev.Pin == "" {
		return false, nil
	}
	_, ok := p.pins[ev.Pin]
	return ok, nil
}

// ── time_window ────────────────────────────────────────────────────────────

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// timeWindow approves reads whose timestamp falls inside a daily window.
// A window whose end is before its start wraps past midnight.
type timeWindow struct {
	base
	start, end int // minutes since midnight
	days       map[time.Weekday]bool
	loc        *time.Location
}

func (p *timeWindow) Name() string        { return "Time Window" }
func (p *timeWindow) Description() string { return "Approves reads inside a daily time window" }

func (p *timeWindow) Init(_ context.Context, cfg map[string]string) error {
	var err error
	if p.start, err = parseClock(cfg["start"], 0); err != nil {
		return fmt.Errorf("time_window: start: %w", err)
	}
	if p.end, err = parseClock(cfg["end"], 24*60); err != nil {
		return fmt.Errorf("time_window: end: %w", err)
	}

	if days := splitList(cfg["days"]); len(days) > 0 {
		p.days = make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			wd, ok := weekdays[strings.ToLower(d)]
			if !ok {
				return fmt.Errorf("time_window: unknown day %q", d)
			}
			p.days[wd] = true
		}
	}

	p.loc = time.UTC
	if name := strings.TrimSpace(cfg["location"]); name != "" {
		if p.loc, err = time.LoadLocation(name); err != nil {
			return fmt.Errorf("time_window: location: %w", err)
		}
	}
	return nil
}

func parseClock(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (p *timeWindow) allows(ts time.Time) bool {
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.In(p.loc)
	m := ts.Hour()*60 + ts.Minute()

	day := ts.Weekday()
	switch {
	case p.start <= p.end:
		if m < p.start || m >= p.end {
			return false
		}
	case m >= p.start:
	case m < p.end:
		// After midnight the window still belongs to the day it opened on.
		day = ts.AddDate(0, 0, -1).Weekday()
	default:
		return false
	}
	return p.days == nil || p.days[day]
}

func (p *timeWindow) EvaluateCard(_ context.Context, ev types.CardReadEvent) (bool, error) {
	return p.allows(ev.Timestamp), nil
}

func (p *timeWindow) EvaluatePin(_ context.Context, ev types.PinReadEvent) (bool, error) {
	return p.allows(ev.Timestamp), nil
}
