package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/facebook"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/internal/runstate"
	"frameworks/crowsnest/pkg/logging"
)

type memSettings struct {
	mu sync.Mutex
	s  config.Settings
}

func (m *memSettings) Load() (config.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memSettings) Update(fn func(*config.Settings)) (config.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.s)
	return m.s, nil
}

type memLog struct {
	mu      sync.Mutex
	entries []logstore.Entry
	err     error
}

func (m *memLog) Load(context.Context) ([]logstore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logstore.Entry(nil), m.entries...), nil
}

func (m *memLog) Append(_ context.Context, e logstore.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	calls    []string
	posts    []string
	noIDFor  string
	storyErr error
	panicMsg string
	seq      int
}

func (f *fakePublisher) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakePublisher) Publish(_ context.Context, _ facebook.Credentials, message string, _ []queue.MediaItem, replyTo string) (string, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if replyTo != "" {
		f.record("comment:" + replyTo + ":" + message)
		return "c-" + replyTo, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "publish:"+message)
	if message == f.noIDFor {
		return "", nil
	}
	f.seq++
	id := "post" + string(rune('0'+f.seq))
	f.posts = append(f.posts, message)
	return id, nil
}

func (f *fakePublisher) React(_ context.Context, _ facebook.Credentials, objectID, reaction string) error {
	f.record("react:" + objectID + ":" + reaction)
	return nil
}

func (f *fakePublisher) ListComments(_ context.Context, _ facebook.Credentials, postID string) ([]facebook.Comment, error) {
	f.record("list:" + postID)
	return []facebook.Comment{{ID: "c1"}, {ID: "c2"}}, nil
}

func (f *fakePublisher) ShareStory(_ context.Context, _ facebook.Credentials, imageURL, postURL string) (string, error) {
	f.record("story:" + imageURL + ":" + postURL)
	return "s1", f.storyErr
}

func (f *fakePublisher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) Publish(_ context.Context, typ string, content any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, typ)
}

type harness struct {
	sched    *Scheduler
	queue    *queue.Queue
	state    *runstate.State
	settings *memSettings
	pub      *fakePublisher
	log      *memLog
	events   *recordedEvents
	delays   []time.Duration
}

func newHarness(t *testing.T, mutate func(*config.Settings)) *harness {
	t.Helper()
	s := config.DefaultSettings()
	s.DebugMode = false
	s.PostIntervalMinutes = 5
	s.FBPageID = "page"
	s.FBPageToken = "tok"
	if mutate != nil {
		mutate(&s)
	}
	h := &harness{
		queue:    queue.New(),
		state:    runstate.New(),
		settings: &memSettings{s: s},
		pub:      &fakePublisher{},
		log:      &memLog{},
		events:   &recordedEvents{},
	}
	h.state.SetRunning(true)
	h.sched = New(Config{
		Profile:   NewsProfile,
		Queue:     h.queue,
		State:     h.state,
		Settings:  h.settings,
		Publisher: h.pub,
		Log:       h.log,
		Events:    h.events,
		AfterFunc: func(d time.Duration, f func()) *time.Timer {
			h.delays = append(h.delays, d)
			f()
			return nil
		},
	})
	return h
}

func TestTickPublishesInOrderWithSpacing(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.RewriteMode = config.RewriteModeManual })
	for _, c := range []string{"A", "B", "C"} {
		h.queue.Push(queue.Post{Content: c, Link: "https://x/" + c, Title: c})
	}
	h.pub.noIDFor = "C"
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	steps := []struct {
		at   time.Duration
		want Outcome
	}{
		{0, OutcomePublished},
		{time.Minute, OutcomeWaiting},
		{4*time.Minute + 59*time.Second, OutcomeWaiting},
		{5 * time.Minute, OutcomePublished},
		{10 * time.Minute, OutcomeFailed},
		{11 * time.Minute, OutcomeEmpty},
	}
	for _, st := range steps {
		if got := h.sched.Tick(ctx, t0.Add(st.at)); got != st.want {
			t.Fatalf("tick at +%s: expected %s, got %s", st.at, st.want, got)
		}
	}

	if strings.Join(h.pub.posts, ",") != "A,B" {
		t.Fatalf("expected FIFO publishes A,B, got %v", h.pub.posts)
	}
	entries, _ := h.log.Load(ctx)
	if len(entries) != 2 || entries[0].Title != "A" || entries[1].Title != "B" {
		t.Fatalf("failed publish must not be logged: %+v", entries)
	}
	if !h.state.LastPublish().Equal(t0.Add(5 * time.Minute)) {
		t.Fatalf("failed publish must not move the timestamp, got %s", h.state.LastPublish())
	}
	if h.queue.Len() != 0 {
		t.Fatalf("failed post must not be requeued")
	}
}

func TestTickIdleWhenStoppedAndEmpty(t *testing.T) {
	h := newHarness(t, nil)
	h.state.SetRunning(false)
	if got := h.sched.Tick(context.Background(), time.Now()); got != OutcomeIdle {
		t.Fatalf("expected idle, got %s", got)
	}

	// a stopped scheduler still drains what is left
	h.queue.Push(queue.Post{Content: "left over", Link: "https://x/1"})
	if got := h.sched.Tick(context.Background(), time.Now()); got != OutcomePublished {
		t.Fatalf("expected leftover post to publish, got %s", got)
	}
}

func TestTickDebugModeSimulates(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.DebugMode = true })
	h.queue.Push(queue.Post{Content: "A", Link: "https://x/a"})
	now := time.Now()

	if got := h.sched.Tick(context.Background(), now); got != OutcomeSimulated {
		t.Fatalf("expected simulated, got %s", got)
	}
	if len(h.pub.Calls()) != 0 {
		t.Fatalf("debug mode must not call the publisher: %v", h.pub.Calls())
	}
	if !h.state.LastPublish().Equal(now) {
		t.Fatalf("debug mode must advance the timestamp")
	}
	if entries, _ := h.log.Load(context.Background()); len(entries) != 0 {
		t.Fatalf("debug mode must not log entries")
	}
}

func TestTickReadsIntervalFresh(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.Push(queue.Post{Content: "A"})
	h.queue.Push(queue.Post{Content: "B"})
	t0 := time.Now()

	h.sched.Tick(context.Background(), t0)
	if got := h.sched.Tick(context.Background(), t0.Add(2*time.Minute)); got != OutcomeWaiting {
		t.Fatalf("expected waiting with a 5 minute interval, got %s", got)
	}
	_, _ = h.settings.Update(func(s *config.Settings) { s.PostIntervalMinutes = 1 })
	if got := h.sched.Tick(context.Background(), t0.Add(2*time.Minute)); got != OutcomePublished {
		t.Fatalf("expected the shortened interval to apply, got %s", got)
	}
}

func TestPublishSequence(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) {
		s.AutoLikePosts = true
		s.AutoReactComments = true
		s.AutoReactCommentDelaySeconds = 30
		s.SharePostToStory = true
		s.RewriteMode = config.RewriteModeAI
	})
	h.queue.Push(queue.Post{
		Content:   "Bài viết",
		Link:      "https://news.test/1234.html",
		Title:     "Tiêu đề",
		ImageHash: "hash-1",
		RawImages: []string{"https://img.test/1.jpg", "https://img.test/2.jpg"},
		Topics:    []string{"Kinh tế"},
	})

	now := time.Now()
	if got := h.sched.Tick(context.Background(), now); got != OutcomePublished {
		t.Fatalf("expected published, got %s", got)
	}
	h.sched.Wait()

	want := []string{
		"publish:Bài viết",
		"react:post1:LIKE",
		"list:post1",
		"react:c1:LOVE",
		"react:c2:LOVE",
		"comment:post1:https://news.test/1234.html",
		"story:https://img.test/1.jpg:https://www.facebook.com/page/posts/post1",
	}
	if got := h.pub.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected call sequence:\n got %v\nwant %v", got, want)
	}
	if len(h.delays) != 1 || h.delays[0] != 30*time.Second {
		t.Fatalf("expected one sweep after 30s, got %v", h.delays)
	}

	entries, _ := h.log.Load(context.Background())
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ImageHash != "hash-1" || e.Image != "https://img.test/1.jpg" || e.PostID != "post1" || !e.Timestamp.Equal(now) {
		t.Fatalf("unexpected entry %+v", e)
	}
	if s, _ := h.settings.Load(); s.Used != 1 {
		t.Fatalf("expected usage counter incremented, got %d", s.Used)
	}
	if len(h.events.events) != 1 || h.events.events[0] != logsink.TypePostSuccess {
		t.Fatalf("expected post-success event, got %v", h.events.events)
	}
}

func TestStoryFailureDoesNotRollBack(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) { s.SharePostToStory = true })
	h.pub.storyErr = errors.New("story rejected")
	logger := logging.NewDiscardLogger()
	hook := test.NewLocal(logger)
	h.sched.logger = logger

	h.queue.Push(queue.Post{Content: "A", Link: "https://x/a", RawImages: []string{"https://img/1.jpg"}})
	now := time.Now()
	if got := h.sched.Tick(context.Background(), now); got != OutcomePublished {
		t.Fatalf("expected published, got %s", got)
	}
	if !h.state.LastPublish().Equal(now) {
		t.Fatalf("timestamp must advance")
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Scheduler: story share failed" && e.Level == logging.ErrorLevel {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected story failure to be logged")
	}
}

func TestLogAppendFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.log.err = errors.New("disk full")
	logger := logging.NewDiscardLogger()
	hook := test.NewLocal(logger)
	h.sched.logger = logger

	h.queue.Push(queue.Post{Content: "A"})
	if got := h.sched.Tick(context.Background(), time.Now()); got != OutcomePublished {
		t.Fatalf("expected published, got %s", got)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Scheduler: cannot write publish log" && e.Level == logging.ErrorLevel {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected log append failure at error level")
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.pub.panicMsg = "boom"
	h.queue.Push(queue.Post{Content: "A"})
	if got := h.sched.Tick(context.Background(), time.Now()); got != OutcomeFailed {
		t.Fatalf("expected failed after panic, got %s", got)
	}
	if !h.state.LastPublish().IsZero() {
		t.Fatalf("panic must not advance the timestamp")
	}
}

func TestReelsProfileSkipsEngagement(t *testing.T) {
	h := newHarness(t, func(s *config.Settings) {
		s.AutoLikePosts = true
		s.SharePostToStory = true
		s.DebugModeReels = false
		s.DebugMode = true
		s.RewriteMode = config.RewriteModeAI
	})
	h.sched.profile = ReelsProfile
	h.queue.Push(queue.Post{Content: "clip", Link: "https://youtube.test/watch?v=1", RawImages: []string{"x"}})

	if got := h.sched.Tick(context.Background(), time.Now()); got != OutcomePublished {
		t.Fatalf("reels must ignore the news debug flag, got %s", got)
	}
	if calls := h.pub.Calls(); len(calls) != 1 {
		t.Fatalf("reels must only publish, got %v", calls)
	}
	if s, _ := h.settings.Load(); s.Used != 0 {
		t.Fatalf("reels must not count usage")
	}
	if h.events.events[0] != logsink.TypeReelsPostSuccess {
		t.Fatalf("unexpected event %v", h.events.events)
	}
}
