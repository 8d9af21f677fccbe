package router

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	to   []int64
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to.ChatID)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type utcPort struct{}

func (utcPort) Location() *time.Location { return time.UTC }

func newTestRouter(t *testing.T) (*Router, *fakeAdapter, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "schedule.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, st, utcPort{}, nil)
	return r, ad, st
}

func send(r *Router, chatID int64, text string) {
	r.route(context.Background(), kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ChatID: chatID, FromID: chatID, Text: text},
	})
}

func TestStartRepliesUsage(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	send(r, 1, "/start")
	if !strings.Contains(ad.last(), "/add") {
		t.Fatalf("usage reply missing command list: %q", ad.last())
	}
}

func TestAddThenList(t *testing.T) {
	t.Parallel()
	r, ad, st := newTestRouter(t)

	send(r, 1, "/add 19:00 walk the dog")
	if !strings.HasPrefix(ad.last(), "saved:") {
		t.Fatalf("add reply = %q", ad.last())
	}

	seq, err := st.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(seq) != 1 || seq[0].Time != "19:00" || seq[0].Message != "walk the dog" || seq[0].Status != reminder.StatusPending {
		t.Fatalf("stored reminder = %+v", seq)
	}

	send(r, 1, "/list")
	out := ad.last()
	if !strings.Contains(out, "1. 19:00") || !strings.Contains(out, "walk the dog") {
		t.Fatalf("list rendering = %q", out)
	}
}

func TestAddWithDayToken(t *testing.T) {
	t.Parallel()
	r, _, st := newTestRouter(t)

	send(r, 1, "/add mon 09:00 weekly sync")
	seq, _ := st.List(context.Background(), 1)
	if len(seq) != 1 {
		t.Fatalf("stored = %+v", seq)
	}
	// A weekday token is resolved to a concrete next date.
	if _, err := time.Parse("2006-01-02", seq[0].Day); err != nil {
		t.Fatalf("day not resolved to a date: %q", seq[0].Day)
	}
}

func TestAddValidationErrorIsReplied(t *testing.T) {
	t.Parallel()
	r, ad, st := newTestRouter(t)

	send(r, 1, "/add 25:99 nope")
	if !strings.Contains(ad.last(), "invalid hour") {
		t.Fatalf("validation reply = %q", ad.last())
	}
	seq, _ := st.List(context.Background(), 1)
	if len(seq) != 0 {
		t.Fatalf("invalid input was stored: %+v", seq)
	}
}

func TestAddUsageOnTooFewArgs(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	send(r, 1, "/add")
	if !strings.Contains(ad.last(), "usage: /add") {
		t.Fatalf("reply = %q", ad.last())
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	r, ad, st := newTestRouter(t)

	send(r, 1, "/add 09:00 first")
	send(r, 1, "/add 10:00 second")
	send(r, 1, "/add 11:00 third")

	send(r, 1, "/remove 2")
	if !strings.HasPrefix(ad.last(), "removed:") || !strings.Contains(ad.last(), "second") {
		t.Fatalf("remove reply = %q", ad.last())
	}

	seq, _ := st.List(context.Background(), 1)
	if len(seq) != 2 || seq[0].Message != "first" || seq[1].Message != "third" {
		t.Fatalf("sequence after remove = %+v", seq)
	}
}

func TestRemoveOutOfRange(t *testing.T) {
	t.Parallel()
	r, ad, st := newTestRouter(t)

	send(r, 1, "/add 09:00 only one")
	send(r, 1, "/remove 5")
	if !strings.Contains(ad.last(), "no reminder number 5") {
		t.Fatalf("reply = %q", ad.last())
	}
	seq, _ := st.List(context.Background(), 1)
	if len(seq) != 1 {
		t.Fatalf("out-of-range remove changed the sequence: %+v", seq)
	}
}

func TestRemoveNonNumeric(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	send(r, 1, "/remove first")
	if !strings.Contains(ad.last(), "not a reminder number") {
		t.Fatalf("reply = %q", ad.last())
	}
}

func TestClearIsOwnerScoped(t *testing.T) {
	t.Parallel()
	r, ad, st := newTestRouter(t)

	send(r, 1, "/add 09:00 mine")
	send(r, 2, "/add 10:00 theirs")

	send(r, 1, "/clear")
	if !strings.Contains(ad.last(), "cleared 1") {
		t.Fatalf("clear reply = %q", ad.last())
	}

	seq1, _ := st.List(context.Background(), 1)
	seq2, _ := st.List(context.Background(), 2)
	if len(seq1) != 0 {
		t.Fatalf("owner 1 not cleared: %+v", seq1)
	}
	if len(seq2) != 1 {
		t.Fatalf("owner 2 was cleared too: %+v", seq2)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	send(r, 1, "/frobnicate now")
	send(r, 1, "just chatting")
	if ad.count() != 0 {
		t.Fatalf("unexpected replies: %v", ad.sent)
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	send(r, 1, "/list@remind_bot")
	if ad.count() != 1 {
		t.Fatalf("suffixed command not routed")
	}
}

func TestOwnersDoNotLeak(t *testing.T) {
	t.Parallel()
	r, _, st := newTestRouter(t)

	// Interleaved owners: each add must land on its own sequence.
	send(r, 100, "/add 09:00 a")
	send(r, 200, "/add 09:00 b")
	send(r, 100, "/add 10:00 c")

	seq1, _ := st.List(context.Background(), 100)
	seq2, _ := st.List(context.Background(), 200)
	if len(seq1) != 2 || len(seq2) != 1 {
		t.Fatalf("cross-owner leakage: owner100=%+v owner200=%+v", seq1, seq2)
	}
}

func TestDispatchLoopStopsOnChannelClose(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	updates := make(chan kit.Update, 1)
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: 1, Text: "/start"}}
	close(updates)

	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(context.Background(), updates)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("DispatchLoop did not return after channel close")
	}
	if ad.count() != 1 {
		t.Fatalf("queued update not handled before exit")
	}
}
