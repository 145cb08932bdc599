package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"lingobot/internal/schedule"
	kit "lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) Send(_ context.Context, _ int64, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatalf("expected a reply, got none")
	}
	return f.texts[len(f.texts)-1]
}

type fakeScheduler struct {
	users map[int64]bool
}

func (f *fakeScheduler) AddUser(id int64)    { f.users[id] = true }
func (f *fakeScheduler) RemoveUser(id int64) { delete(f.users, id) }
func (f *fakeScheduler) HasUser(id int64) bool {
	return f.users[id]
}
func (f *fakeScheduler) Status() schedule.Status {
	return schedule.Status{ActiveUsers: len(f.users), ArmedTimers: len(f.users)}
}

type fakeSubs struct {
	added   []int64
	removed []int64
	err     error
}

func (f *fakeSubs) AddSubscription(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, id)
	return nil
}

func (f *fakeSubs) RemoveSubscription(_ context.Context, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeFeedback struct {
	reply string
	err   error
	got   string
}

func (f *fakeFeedback) Record(_ context.Context, _ int64, text string) (string, error) {
	f.got = text
	return f.reply, f.err
}

type fakeReview struct {
	sent bool
	err  error
}

func (f *fakeReview) DispatchReview(context.Context, int64) (bool, error) {
	return f.sent, f.err
}

type routerFixture struct {
	router   *Router
	sender   *fakeSender
	sched    *fakeScheduler
	subs     *fakeSubs
	feedback *fakeFeedback
	review   *fakeReview
}

func newFixture(owners ...int64) *routerFixture {
	f := &routerFixture{
		sender:   &fakeSender{},
		sched:    &fakeScheduler{users: map[int64]bool{}},
		subs:     &fakeSubs{},
		feedback: &fakeFeedback{reply: "looks good"},
		review:   &fakeReview{},
	}
	f.router = NewRouter(f.sender, f.sched, f.subs, f.feedback, f.review, owners, logx.Nop())
	return f
}

func msg(text string) kit.Message {
	return kit.Message{ChatID: 42, FromID: 42, Text: text}
}

func TestSubscribeCommand(t *testing.T) {
	f := newFixture()
	f.router.handle(context.Background(), msg("/subscribe"))

	if len(f.subs.added) != 1 || f.subs.added[0] != 42 {
		t.Fatalf("subscription not persisted: %v", f.subs.added)
	}
	if !f.sched.users[42] {
		t.Fatalf("user not added to scheduler")
	}
	if !strings.Contains(f.sender.last(t), "challenges") {
		t.Fatalf("unexpected reply: %q", f.sender.last(t))
	}
}

func TestSubscribePersistFailureSkipsScheduler(t *testing.T) {
	f := newFixture()
	f.subs.err = errors.New("disk full")
	f.router.handle(context.Background(), msg("/subscribe"))

	if f.sched.users[42] {
		t.Fatalf("scheduler must not be touched when persistence fails")
	}
}

func TestUnsubscribeCommand(t *testing.T) {
	f := newFixture()
	f.sched.users[42] = true
	f.router.handle(context.Background(), msg("/unsubscribe"))

	if f.sched.users[42] {
		t.Fatalf("user still scheduled")
	}
	if len(f.subs.removed) != 1 {
		t.Fatalf("subscription not removed: %v", f.subs.removed)
	}
}

func TestPlainTextGoesToFeedback(t *testing.T) {
	f := newFixture()
	f.router.handle(context.Background(), msg("i goed to the store"))

	if f.feedback.got != "i goed to the store" {
		t.Fatalf("feedback did not receive the text: %q", f.feedback.got)
	}
	if f.sender.last(t) != "looks good" {
		t.Fatalf("analysis reply not forwarded: %q", f.sender.last(t))
	}
}

func TestGroupChatterIgnored(t *testing.T) {
	f := newFixture()
	m := msg("random group talk")
	m.IsGroup = true
	f.router.handle(context.Background(), m)

	if f.feedback.got != "" {
		t.Fatalf("group text must not reach feedback analysis")
	}
	if len(f.sender.texts) != 0 {
		t.Fatalf("no reply expected for group chatter")
	}
}

func TestVoiceGetsTextOnlyReply(t *testing.T) {
	f := newFixture()
	m := msg("")
	m.IsVoice = true
	f.router.handle(context.Background(), m)

	if !strings.Contains(f.sender.last(t), "text") {
		t.Fatalf("unexpected voice reply: %q", f.sender.last(t))
	}
	if f.feedback.got != "" {
		t.Fatalf("voice must not reach feedback analysis")
	}
}

func TestReviewCommandNoMaterial(t *testing.T) {
	f := newFixture()
	f.router.handle(context.Background(), msg("/review"))

	if !strings.Contains(f.sender.last(t), "Nothing to review") {
		t.Fatalf("unexpected reply: %q", f.sender.last(t))
	}
}

func TestReviewCommandSendsNothingExtraOnSuccess(t *testing.T) {
	f := newFixture()
	f.review.sent = true
	f.router.handle(context.Background(), msg("/review"))

	// The dispatcher already sent the review itself; no second message.
	if len(f.sender.texts) != 0 {
		t.Fatalf("unexpected extra reply: %v", f.sender.texts)
	}
}

func TestStatusCommand(t *testing.T) {
	f := newFixture(99)
	f.sched.users[42] = true
	f.router.handle(context.Background(), msg("/status"))
	if !strings.Contains(f.sender.last(t), "on") {
		t.Fatalf("unexpected subscriber status reply: %q", f.sender.last(t))
	}

	owner := msg("/status")
	owner.ChatID, owner.FromID = 99, 99
	f.router.handle(context.Background(), owner)
	if !strings.Contains(f.sender.last(t), "Active users: 1") {
		t.Fatalf("unexpected owner status reply: %q", f.sender.last(t))
	}
}

func TestSetOwnersConcurrentWithHandling(t *testing.T) {
	f := newFixture(99)
	f.sched.users[42] = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			f.router.SetOwners([]int64{99, int64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		owner := msg("/status")
		owner.ChatID, owner.FromID = 99, 99
		for i := 0; i < 200; i++ {
			f.router.handle(context.Background(), owner)
		}
	}()
	wg.Wait()

	if !strings.Contains(f.sender.last(t), "Active users: 1") {
		t.Fatalf("owner status lost after reloads: %q", f.sender.last(t))
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	f := newFixture()
	f.router.handle(context.Background(), msg("/subscribe@lingobot"))
	if len(f.subs.added) != 1 {
		t.Fatalf("suffixed command not recognized")
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture()
	f.router.handle(context.Background(), msg("/frobnicate"))
	if !strings.Contains(f.sender.last(t), "/help") {
		t.Fatalf("unexpected reply: %q", f.sender.last(t))
	}
}
