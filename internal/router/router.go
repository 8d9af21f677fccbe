package router

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// SchedulerPort is the slice of the scheduler the router needs: the fixed
// civil timezone that anchors relative day tokens in /add.
type SchedulerPort interface {
	Location() *time.Location
}

// Request carries one inbound command through a handler.
type Request struct {
	Chat   kit.ChatTarget
	FromID int64
	Args   []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

type command struct {
	usage  string
	handle HandlerFunc
}

// Router consumes transport updates and dispatches the reminder command set.
// Unrecognized commands and plain text are dropped without a reply.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	commands map[string]command

	// Per-command timeout so one slow store call cannot wedge the loop.
	timeout time.Duration
}

func New(log logx.Logger, adapter kit.Adapter, store Store, sched SchedulerPort, bus eventbus.Bus) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:     log,
		adapter: adapter,
		bus:     bus,
		timeout: 10 * time.Second,
	}
	r.commands = buildCommands(store, sched, bus)
	return r
}

// DispatchLoop reads updates until ctx is canceled or the channel closes.
// Handlers run inline: the command set is small and every handler is a short
// store round-trip, so a worker pool would only add reordering.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("command dispatcher started")
	defer r.log.Info("command dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	cmd, ok := r.commands[word]
	if !ok {
		// Unknown commands are dropped on purpose: in group chats the bot
		// sees commands addressed to other bots.
		r.log.Debug("ignoring unknown command", logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID))
		return
	}

	req := &Request{
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Args:    parts[1:],
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("cmd", word),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		),
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := runHandler(cctx, cmd.handle, req)
	if err != nil {
		req.Logger.Warn("command failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	req.Logger.Debug("command handled", logx.Duration("took", time.Since(start)))
}

func reply(ctx context.Context, req *Request, text string) {
	if _, err := req.Adapter.SendText(ctx, req.Chat, text, nil); err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
}

func runHandler(ctx context.Context, h HandlerFunc, req *Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			req.Logger.Error("panic in command handler",
				logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			err = nil
		}
	}()
	return h(ctx, req)
}

