package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

const (
	defaultTimezone = "Asia/Bangkok"
	defaultTickSpec = "* * * * *"
)

// Sink receives fired reminders for delivery. Enqueue-only: a Sink must not
// block the caller on network I/O.
type Sink interface {
	Notify(ctx context.Context, owner int64, text string) error
}

// Config controls the reconciliation loop.
type Config struct {
	Enabled    bool
	Timezone   string
	TickSpec   string
	PurgeFired bool
}

// FiredEvent is published on the bus for every reminder the tick fires.
type FiredEvent struct {
	ChatID  int64     `json:"chat_id"`
	Day     string    `json:"day,omitempty"`
	Time    string    `json:"time"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Service drives reminder firing off a per-minute cron tick.
//
// Each tick is a single read-modify-write pass over the whole store: every
// pending reminder whose schedule matches the current civil minute is flipped
// to fired, the document is persisted, and only then are deliveries handed to
// the sink. Flipping before delivery is what makes firing at-most-once; a
// failed save leaves everything pending for the next tick instead.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	store storage.Store
	bus   eventbus.Bus
	sink  Sink

	cfg Config
	loc *time.Location

	c         *cron.Cron
	parent    context.Context
	runCtx    context.Context
	runCancel context.CancelFunc

	// Serializes ticks so a slow store can never overlap two passes.
	tickMu sync.Mutex
}

func New(cfg Config, store storage.Store, sink Sink, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		store: store,
		bus:   bus,
		sink:  sink,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Location returns the fixed civil timezone all matching happens in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	return loc
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	oldSpec := s.cfg.TickSpec
	running := s.c != nil
	s.applyLocked(cfg)
	restart := running && (strings.TrimSpace(cfg.Timezone) != oldTZ || cfg.TickSpec != oldSpec)
	parent := s.parent
	s.mu.Unlock()

	if restart {
		s.Stop(context.Background())
		s.Start(parent)
	}
}

func (s *Service) applyLocked(cfg Config) {
	s.cfg = cfg
	s.loc = loadLocation(cfg.Timezone, s.log)
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("unknown timezone, falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

// Start registers the tick with a fresh cron runner. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		return
	}

	spec := strings.TrimSpace(s.cfg.TickSpec)
	if spec == "" {
		spec = defaultTickSpec
	}
	loc := s.loc

	s.parent = ctx
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	runCtx := s.runCtx

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		if err := s.Tick(runCtx, time.Now().In(loc)); err != nil && runCtx.Err() == nil {
			s.log.Error("tick failed", logx.Err(err))
		}
	}); err != nil {
		// Bad spec from a hot-reloaded config: keep the loop down and say why.
		s.log.Error("invalid tick spec, scheduler not started", logx.String("spec", spec), logx.Err(err))
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return
	}
	s.c = c
	c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.String("spec", spec))
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Tick reconciles the store against the given instant, firing every pending
// reminder whose schedule matches now's civil minute. Safe to call directly;
// repeated ticks for the same minute are no-ops because fired reminders never
// match again.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	loc := s.loc
	purge := s.cfg.PurgeFired
	s.mu.Unlock()

	now = now.In(loc)

	type delivery struct {
		owner int64
		rem   reminder.Reminder
	}
	var due []delivery

	err := s.store.UpdateAll(ctx, func(data map[int64][]reminder.Reminder) (map[int64][]reminder.Reminder, bool, error) {
		due = due[:0]
		changed := false

		owners := make([]int64, 0, len(data))
		for owner := range data {
			owners = append(owners, owner)
		}
		sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

		for _, owner := range owners {
			seq := data[owner]
			out := make([]reminder.Reminder, 0, len(seq))
			for _, r := range seq {
				if r.Pending() && r.Matches(now) {
					r.Status = reminder.StatusFired
					due = append(due, delivery{owner: owner, rem: r})
					changed = true
				}
				if purge && r.Status == reminder.StatusFired {
					changed = true
					continue
				}
				out = append(out, r)
			}
			if len(out) == 0 {
				delete(data, owner)
			} else {
				data[owner] = out
			}
		}
		return data, changed, nil
	})
	if err != nil {
		// Nothing was persisted, so nothing may be delivered either.
		return fmt.Errorf("tick reconcile: %w", err)
	}

	for _, d := range due {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFired, Time: now, Data: FiredEvent{
				ChatID:  d.owner,
				Day:     d.rem.Day,
				Time:    d.rem.Time,
				Message: d.rem.Message,
				At:      now,
			}})
		}
		if s.sink == nil {
			continue
		}
		if err := s.sink.Notify(ctx, d.owner, d.rem.Message); err != nil {
			s.log.Warn("delivery handoff failed",
				logx.Int64("chat_id", d.owner), logx.String("time", d.rem.Time), logx.Err(err))
		}
	}
	if len(due) > 0 {
		s.log.Info("reminders fired", logx.Int("count", len(due)), logx.Time("at", now))
	}
	return nil
}
