package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
)

// Store is the slice of the storage layer the command handlers need.
type Store interface {
	List(ctx context.Context, owner int64) ([]reminder.Reminder, error)
	Update(ctx context.Context, owner int64, fn func([]reminder.Reminder) ([]reminder.Reminder, error)) error
}

const usageText = `I keep your reminders and ping you when they are due.

/add [day] HH:MM text  schedule a reminder
/list                  show your reminders
/remove N              delete reminder number N
/clear                 delete all your reminders

day is optional: today, tomorrow, a weekday name (mon..sun), 1-7
(Monday=1), or a date like 2026-01-31. Without it the reminder fires
the next time the clock shows HH:MM.`

const storageFailedText = "sorry, I could not update your reminders right now. Please try again."

func buildCommands(store Store, sched SchedulerPort, bus eventbus.Bus) map[string]command {
	h := &handlers{store: store, sched: sched, bus: bus}
	return map[string]command{
		"start":  {usage: "/start", handle: h.start},
		"help":   {usage: "/help", handle: h.start},
		"add":    {usage: "/add [day] HH:MM text", handle: h.add},
		"list":   {usage: "/list", handle: h.list},
		"remove": {usage: "/remove N", handle: h.remove},
		"clear":  {usage: "/clear", handle: h.clear},
	}
}

type handlers struct {
	store Store
	sched SchedulerPort
	bus   eventbus.Bus
}

func (h *handlers) now() time.Time {
	loc := time.UTC
	if h.sched != nil {
		if l := h.sched.Location(); l != nil {
			loc = l
		}
	}
	return time.Now().In(loc)
}

// CommandEvent is the payload attached to reminder.* events published by the
// command handlers.
type CommandEvent struct {
	Owner int64
	Data  any
}

func (h *handlers) publish(typ string, owner int64, data any) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: CommandEvent{Owner: owner, Data: data}})
}

func (h *handlers) start(ctx context.Context, req *Request) error {
	reply(ctx, req, usageText)
	return nil
}

func (h *handlers) add(ctx context.Context, req *Request) error {
	day, timeTok, text, ok := splitAddArgs(req.Args)
	if !ok {
		reply(ctx, req, "usage: /add [day] HH:MM text")
		return nil
	}

	rem, err := reminder.Parse(h.now(), day, timeTok, text)
	if err != nil {
		if reminder.IsValidation(err) {
			reply(ctx, req, err.Error())
			return nil
		}
		return err
	}

	owner := req.Chat.ChatID
	err = h.store.Update(ctx, owner, func(seq []reminder.Reminder) ([]reminder.Reminder, error) {
		return append(seq, rem), nil
	})
	if err != nil {
		reply(ctx, req, storageFailedText)
		return fmt.Errorf("add reminder: %w", err)
	}

	h.publish(eventbus.TypeReminderAdded, owner, rem)
	reply(ctx, req, "saved: "+renderOne(rem))
	return nil
}

func (h *handlers) list(ctx context.Context, req *Request) error {
	owner := req.Chat.ChatID
	seq, err := h.store.List(ctx, owner)
	if err != nil {
		reply(ctx, req, storageFailedText)
		return fmt.Errorf("list reminders: %w", err)
	}
	if len(seq) == 0 {
		reply(ctx, req, "you have no reminders. Add one with /add")
		return nil
	}

	var b strings.Builder
	b.WriteString("your reminders:\n")
	for i, r := range seq {
		fmt.Fprintf(&b, "%d. %s\n", i+1, renderOne(r))
	}
	reply(ctx, req, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (h *handlers) remove(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		reply(ctx, req, "usage: /remove N (see /list for numbers)")
		return nil
	}
	idx, err := strconv.Atoi(req.Args[0])
	if err != nil || idx < 1 {
		reply(ctx, req, fmt.Sprintf("%q is not a reminder number", req.Args[0]))
		return nil
	}

	owner := req.Chat.ChatID
	var removed reminder.Reminder
	outOfRange := false
	err = h.store.Update(ctx, owner, func(seq []reminder.Reminder) ([]reminder.Reminder, error) {
		if idx > len(seq) {
			outOfRange = true
			return seq, nil
		}
		removed = seq[idx-1]
		out := make([]reminder.Reminder, 0, len(seq)-1)
		out = append(out, seq[:idx-1]...)
		out = append(out, seq[idx:]...)
		return out, nil
	})
	if err != nil {
		reply(ctx, req, storageFailedText)
		return fmt.Errorf("remove reminder: %w", err)
	}
	if outOfRange {
		reply(ctx, req, fmt.Sprintf("no reminder number %d (you have %s)", idx, countHint(ctx, h.store, owner)))
		return nil
	}

	h.publish(eventbus.TypeReminderRemoved, owner, removed)
	reply(ctx, req, "removed: "+renderOne(removed))
	return nil
}

func (h *handlers) clear(ctx context.Context, req *Request) error {
	owner := req.Chat.ChatID
	n := 0
	err := h.store.Update(ctx, owner, func(seq []reminder.Reminder) ([]reminder.Reminder, error) {
		n = len(seq)
		return nil, nil
	})
	if err != nil {
		reply(ctx, req, storageFailedText)
		return fmt.Errorf("clear reminders: %w", err)
	}

	h.publish(eventbus.TypeReminderCleared, owner, n)
	if n == 0 {
		reply(ctx, req, "nothing to clear")
		return nil
	}
	reply(ctx, req, fmt.Sprintf("cleared %d reminder(s)", n))
	return nil
}

// splitAddArgs separates the optional day token from the time token. The time
// token is the one containing a colon; everything after it is the message.
func splitAddArgs(args []string) (day, timeTok, text string, ok bool) {
	if len(args) < 2 {
		return "", "", "", false
	}
	if strings.Contains(args[0], ":") {
		return "", args[0], strings.Join(args[1:], " "), true
	}
	if len(args) < 3 {
		return "", "", "", false
	}
	if !strings.Contains(args[1], ":") {
		return "", "", "", false
	}
	return args[0], args[1], strings.Join(args[2:], " "), true
}

func renderOne(r reminder.Reminder) string {
	var b strings.Builder
	if r.Day != "" {
		b.WriteString(r.Day)
		b.WriteString(" ")
	}
	b.WriteString(r.Time)
	b.WriteString(" — ")
	b.WriteString(r.Message)
	if r.Status == reminder.StatusFired {
		b.WriteString(" (done)")
	}
	return b.String()
}

func countHint(ctx context.Context, store Store, owner int64) string {
	seq, err := store.List(ctx, owner)
	if err != nil {
		return "some"
	}
	if len(seq) == 1 {
		return "1 reminder"
	}
	return fmt.Sprintf("%d reminders", len(seq))
}
