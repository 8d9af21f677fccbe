package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

type captureSink struct {
	mu     sync.Mutex
	owners []int64
	texts  []string
}

func (c *captureSink) Notify(ctx context.Context, owner int64, text string) error {
	c.mu.Lock()
	c.owners = append(c.owners, owner)
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.texts)
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "schedule.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func seed(t *testing.T, st storage.Store, owner int64, rems ...reminder.Reminder) {
	t.Helper()
	err := st.Update(context.Background(), owner, func(seq []reminder.Reminder) ([]reminder.Reminder, error) {
		return append(seq, rems...), nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newService(t *testing.T, st storage.Store, sink Sink, purge bool) *Service {
	t.Helper()
	return New(Config{Enabled: true, Timezone: "UTC", PurgeFired: purge}, st, sink, logx.Nop(), nil)
}

// 2024-06-10 is a Monday.
var monday19 = time.Date(2024, 6, 10, 19, 0, 0, 0, time.UTC)

func TestTickFiresMatchingMinute(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	seed(t, st, 10,
		reminder.Reminder{Time: "19:00", Message: "walk the dog", Status: reminder.StatusPending},
		reminder.Reminder{Time: "20:00", Message: "too late", Status: reminder.StatusPending},
	)

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 1 || sink.texts[0] != "walk the dog" {
		t.Fatalf("unexpected deliveries: %v", sink.texts)
	}

	seq, _ := st.List(context.Background(), 10)
	if seq[0].Status != reminder.StatusFired {
		t.Fatalf("matched reminder not flipped: %+v", seq[0])
	}
	if seq[1].Status != reminder.StatusPending {
		t.Fatalf("unmatched reminder was touched: %+v", seq[1])
	}
}

func TestRepeatedTicksFireOnce(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	seed(t, st, 10, reminder.Reminder{Time: "19:00", Message: "once", Status: reminder.StatusPending})

	for i := 0; i < 100; i++ {
		if err := svc.Tick(context.Background(), monday19.Add(time.Duration(i)*300*time.Millisecond)); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}
	if got := sink.count(); got != 1 {
		t.Fatalf("fired %d times, want exactly 1", got)
	}
}

func TestWeekdayMatching(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	seed(t, st, 10, reminder.Reminder{Day: "mon", Time: "19:00", Message: "weekly", Status: reminder.StatusPending})

	// Tuesday 19:00 and Monday 18:59 must not fire.
	for _, now := range []time.Time{
		monday19.AddDate(0, 0, 1),
		monday19.Add(-time.Minute),
	} {
		if err := svc.Tick(context.Background(), now); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if sink.count() != 0 {
		t.Fatalf("fired outside its slot: %v", sink.texts)
	}

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("did not fire on Monday 19:00")
	}
}

func TestDateReminderFiresOnDateOnly(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	seed(t, st, 10, reminder.Reminder{Day: "2024-06-11", Time: "19:00", Message: "dated", Status: reminder.StatusPending})

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("fired a day early")
	}
	if err := svc.Tick(context.Background(), monday19.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("did not fire on its date")
	}
}

func TestPurgeFired(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, true)

	seed(t, st, 10,
		reminder.Reminder{Time: "19:00", Message: "fires now", Status: reminder.StatusPending},
		reminder.Reminder{Time: "08:00", Message: "old", Status: reminder.StatusFired},
		reminder.Reminder{Time: "21:00", Message: "keeps", Status: reminder.StatusPending},
	)

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("unexpected deliveries: %v", sink.texts)
	}
	seq, _ := st.List(context.Background(), 10)
	if len(seq) != 1 || seq[0].Message != "keeps" {
		t.Fatalf("purge left wrong entries: %+v", seq)
	}
}

func TestKeepFiredByDefault(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	seed(t, st, 10, reminder.Reminder{Time: "19:00", Message: "fires", Status: reminder.StatusPending})

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	seq, _ := st.List(context.Background(), 10)
	if len(seq) != 1 || seq[0].Status != reminder.StatusFired {
		t.Fatalf("fired entry should stay on the list: %+v", seq)
	}
}

func TestDeliveryOrder(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	seed(t, st, 2,
		reminder.Reminder{Time: "19:00", Message: "b1", Status: reminder.StatusPending},
		reminder.Reminder{Time: "19:00", Message: "b2", Status: reminder.StatusPending},
	)
	seed(t, st, 1, reminder.Reminder{Time: "19:00", Message: "a1", Status: reminder.StatusPending})

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	want := []string{"a1", "b1", "b2"}
	if len(sink.texts) != len(want) {
		t.Fatalf("got %v, want %v", sink.texts, want)
	}
	for i := range want {
		if sink.texts[i] != want[i] {
			t.Fatalf("delivery %d = %q, want %q (owner order, then insertion order)", i, sink.texts[i], want[i])
		}
	}
}

type failingStore struct {
	storage.Store
	fail bool
}

func (f *failingStore) UpdateAll(ctx context.Context, fn func(map[int64][]reminder.Reminder) (map[int64][]reminder.Reminder, bool, error)) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.UpdateAll(ctx, fn)
}

func TestStoreErrorLeavesPending(t *testing.T) {
	t.Parallel()
	inner := newTestStore(t)
	seed(t, inner, 10, reminder.Reminder{Time: "19:00", Message: "survives", Status: reminder.StatusPending})

	st := &failingStore{Store: inner, fail: true}
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	if err := svc.Tick(context.Background(), monday19); err == nil {
		t.Fatalf("expected tick error")
	}
	if sink.count() != 0 {
		t.Fatalf("delivered despite failed persist: %v", sink.texts)
	}

	// Store recovers; the reminder is still pending and fires on the next tick.
	st.fail = false
	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick after recovery: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("did not fire after store recovery")
	}
}

func TestTickNoChangeNoDelivery(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	for i := 0; i < 3; i++ {
		if err := svc.Tick(context.Background(), monday19.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if sink.count() != 0 {
		t.Fatalf("empty store produced deliveries: %v", sink.texts)
	}
}

func TestManyOwnersOneTick(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	for owner := int64(1); owner <= 5; owner++ {
		seed(t, st, owner, reminder.Reminder{Time: "19:00", Message: fmt.Sprintf("for %d", owner), Status: reminder.StatusPending})
	}

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 5 {
		t.Fatalf("got %d deliveries, want 5", sink.count())
	}
	for i, owner := range sink.owners {
		if owner != int64(i+1) {
			t.Fatalf("owner order = %v", sink.owners)
		}
	}
}

func TestAddedReminderFiresOnItsDay(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	sink := &captureSink{}
	svc := newService(t, st, sink, false)

	// Wednesday 2024-06-05: "mon 19:00" resolves to the following Monday.
	added := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	r, err := reminder.Parse(added, "mon", "19:00", "meeting")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	seed(t, st, 10, r)

	// Nothing fires before the resolved day.
	if err := svc.Tick(context.Background(), added); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("fired before its day: %v", sink.texts)
	}

	if err := svc.Tick(context.Background(), monday19); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 1 || sink.texts[0] != "meeting" {
		t.Fatalf("unexpected deliveries: %v", sink.texts)
	}

	// 19:01 the same day stays quiet.
	if err := svc.Tick(context.Background(), monday19.Add(time.Minute)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("fired again at 19:01: %v", sink.texts)
	}
}
