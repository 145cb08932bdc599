// Package bot routes incoming Telegram updates to command handlers and the
// feedback intake path.
package bot

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"lingobot/internal/schedule"
	kit "lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

// Sender delivers replies. *notify.Service satisfies it.
type Sender interface {
	Send(ctx context.Context, userID int64, text string, opt *kit.SendOptions) error
}

// SchedulerPort is the surface the command layer needs from the scheduler.
type SchedulerPort interface {
	AddUser(userID int64)
	RemoveUser(userID int64)
	HasUser(userID int64) bool
	Status() schedule.Status
}

// SubscriptionStore persists opt-in state. *storage.Store satisfies it.
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, userID int64) error
	RemoveSubscription(ctx context.Context, userID int64) error
}

// FeedbackRecorder analyzes and stores a text submission, returning the reply
// text. *feedback.Service satisfies it.
type FeedbackRecorder interface {
	Record(ctx context.Context, userID int64, text string) (string, error)
}

// ReviewDispatcher sends an on-demand review challenge. *challenge.Dispatcher
// satisfies it.
type ReviewDispatcher interface {
	DispatchReview(ctx context.Context, userID int64) (bool, error)
}

const handlerTimeout = 2 * time.Minute

type Router struct {
	sender   Sender
	sched    SchedulerPort
	subs     SubscriptionStore
	feedback FeedbackRecorder
	review   ReviewDispatcher
	log      logx.Logger

	// mu guards owners, which is hot-reloadable while handler goroutines run.
	mu     sync.Mutex
	owners []int64
}

func NewRouter(sender Sender, sched SchedulerPort, subs SubscriptionStore, feedback FeedbackRecorder, review ReviewDispatcher, owners []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		sender:   sender,
		sched:    sched,
		subs:     subs,
		feedback: feedback,
		review:   review,
		owners:   owners,
		log:      log,
	}
}

// SetOwners replaces the owner list (config hot reload).
func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = owners
	r.mu.Unlock()
}

// DispatchLoop consumes updates until the context is cancelled. Each update
// is handled on its own goroutine so a slow analysis call doesn't block other
// users' messages.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message == nil {
				continue
			}
			msg := *up.Message
			go r.handle(ctx, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg kit.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panicked", logx.Int64("user", msg.FromID), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if msg.IsVoice {
		r.reply(hctx, msg, "I can only review text for now - please type your practice sentences.")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		r.handleCommand(hctx, msg, text)
		return
	}

	// Plain text in a private chat is a practice submission; group chatter
	// is not analyzed.
	if msg.IsGroup {
		return
	}
	reply, err := r.feedback.Record(hctx, msg.FromID, text)
	if err != nil {
		r.log.Warn("feedback analysis failed", logx.Int64("user", msg.FromID), logx.Err(err))
		r.reply(hctx, msg, "Sorry, I couldn't analyze that right now. Please try again in a bit.")
		return
	}
	r.reply(hctx, msg, reply)
}

func (r *Router) handleCommand(ctx context.Context, msg kit.Message, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	// Strip the @botname suffix used in groups.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start", "/help":
		r.reply(ctx, msg, helpText)
	case "/subscribe":
		r.cmdSubscribe(ctx, msg)
	case "/unsubscribe":
		r.cmdUnsubscribe(ctx, msg)
	case "/review":
		r.cmdReview(ctx, msg)
	case "/status":
		r.cmdStatus(ctx, msg)
	default:
		r.reply(ctx, msg, "Unknown command. Send /help for the list.")
	}
}

const helpText = `I help you practice a language.

Send me any text you wrote and I'll point out improvements.

/subscribe - receive automated practice challenges
/unsubscribe - stop automated challenges
/review - drill your recorded phrases now
/status - scheduling status`

func (r *Router) cmdSubscribe(ctx context.Context, msg kit.Message) {
	if err := r.subs.AddSubscription(ctx, msg.FromID); err != nil {
		r.log.Warn("subscription save failed", logx.Int64("user", msg.FromID), logx.Err(err))
		r.reply(ctx, msg, "Something went wrong, please try again.")
		return
	}
	r.sched.AddUser(msg.FromID)
	r.reply(ctx, msg, "You're in! I'll send you practice challenges a few times a week.")
}

func (r *Router) cmdUnsubscribe(ctx context.Context, msg kit.Message) {
	r.sched.RemoveUser(msg.FromID)
	if err := r.subs.RemoveSubscription(ctx, msg.FromID); err != nil {
		r.log.Warn("subscription delete failed", logx.Int64("user", msg.FromID), logx.Err(err))
	}
	r.reply(ctx, msg, "Okay, no more automated challenges. Send /subscribe to opt back in.")
}

func (r *Router) cmdReview(ctx context.Context, msg kit.Message) {
	sent, err := r.review.DispatchReview(ctx, msg.FromID)
	if err != nil {
		r.log.Warn("manual review dispatch failed", logx.Int64("user", msg.FromID), logx.Err(err))
		return
	}
	if !sent {
		r.reply(ctx, msg, "Nothing to review yet - send me some text first and I'll collect phrases for you.")
	}
}

func (r *Router) cmdStatus(ctx context.Context, msg kit.Message) {
	if !r.isOwner(msg.FromID) {
		if r.sched.HasUser(msg.FromID) {
			r.reply(ctx, msg, "Automated challenges are on. Send /unsubscribe to stop them.")
		} else {
			r.reply(ctx, msg, "Automated challenges are off. Send /subscribe to enable them.")
		}
		return
	}
	st := r.sched.Status()
	r.reply(ctx, msg, "Active users: "+strconv.Itoa(st.ActiveUsers)+"\nArmed timers: "+strconv.Itoa(st.ArmedTimers))
}

func (r *Router) isOwner(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

func (r *Router) reply(ctx context.Context, msg kit.Message, text string) {
	if err := r.sender.Send(ctx, msg.ChatID, text, nil); err != nil {
		r.log.Warn("reply send failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}
