package news

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/crawler"
	"frameworks/crowsnest/internal/dedup"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/pipeline"
	"frameworks/crowsnest/pkg/logging"
)

type staticSettings struct{ s config.Settings }

func (p staticSettings) Load() (config.Settings, error) { return p.s, nil }

type memLog struct{ entries []logstore.Entry }

func (m *memLog) Load(context.Context) ([]logstore.Entry, error) { return m.entries, nil }

func (m *memLog) Append(_ context.Context, e logstore.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

type fakeCrawler struct {
	candidates []crawler.Candidate
	images     map[string][]string
	sources    []string
}

func (f *fakeCrawler) Crawl(_ context.Context, sources []string) []crawler.Candidate {
	f.sources = sources
	return f.candidates
}

func (f *fakeCrawler) FetchImages(_ context.Context, link string) []string {
	return f.images[link]
}

type fakeImages struct{}

func (fakeImages) Get(_ context.Context, url string, _ int64) ([]byte, http.Header, error) {
	return []byte("bytes of " + url), nil, nil
}

type recordingPipeline struct {
	processed []crawler.Candidate
	status    pipeline.Status
}

func (r *recordingPipeline) Process(_ context.Context, _ *dedup.Cycle, _ config.Settings, c crawler.Candidate, _ func() bool) pipeline.Result {
	r.processed = append(r.processed, c)
	status := r.status
	if status == "" {
		status = pipeline.StatusQueued
	}
	return pipeline.Result{Status: status}
}

type harness struct {
	cycle    *Cycle
	crawler  *fakeCrawler
	pipeline *recordingPipeline
	log      *memLog
	hook     *test.Hook
}

func newHarness(candidates ...crawler.Candidate) *harness {
	settings := config.DefaultSettings()
	settings.Sources = []string{"https://cafef.vn"}
	logger := logging.NewDiscardLogger()
	h := &harness{
		crawler:  &fakeCrawler{candidates: candidates, images: map[string][]string{}},
		pipeline: &recordingPipeline{},
		log:      &memLog{},
		hook:     test.NewLocal(logger),
	}
	h.cycle = New(Config{
		Settings:       staticSettings{s: settings},
		Log:            h.log,
		Crawler:        h.crawler,
		Dedup:          dedup.NewEngine(dedup.Config{Fetcher: fakeImages{}}),
		Pipeline:       h.pipeline,
		CandidateDelay: time.Millisecond,
		Logger:         logger,
		Now:            func() time.Time { return time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC) },
	})
	return h
}

func alwaysRunning() bool { return true }

func (h *harness) logged(msg string) bool {
	for _, e := range h.hook.AllEntries() {
		if strings.HasPrefix(e.Message, msg) {
			return true
		}
	}
	return false
}

func TestRunOnceFiltersDuplicates(t *testing.T) {
	h := newHarness(
		crawler.Candidate{Title: "Giá vàng tăng mạnh", Link: "https://cafef.vn/a-2024.chn", Images: []string{"https://img/1.jpg"}},
		crawler.Candidate{Title: "Giá vàng tăng mạnh", Link: "https://cafef.vn/a-2024.chn"},
		crawler.Candidate{Title: "Tin đã đăng", Link: "https://cafef.vn/old-2023.chn"},
		crawler.Candidate{Title: "Thời tiết miền Bắc chuyển lạnh", Link: "https://cafef.vn/b-2025.chn"},
	)
	h.log.entries = []logstore.Entry{{Link: "https://cafef.vn/old-2023.chn", Title: "Bài cũ khác hẳn"}}
	h.crawler.images["https://cafef.vn/a-2024.chn"] = []string{"https://img/2.jpg", "https://img/1.jpg"}

	sum := h.cycle.RunOnce(context.Background(), alwaysRunning)

	if sum.Candidates != 4 || sum.Queued != 2 || sum.Rejected != 2 || sum.Stopped {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(h.pipeline.processed) != 2 {
		t.Fatalf("expected two processed candidates, got %d", len(h.pipeline.processed))
	}
	first := h.pipeline.processed[0]
	if strings.Join(first.Images, ",") != "https://img/1.jpg,https://img/2.jpg" {
		t.Fatalf("images must merge in order without duplicates, got %v", first.Images)
	}
	if h.pipeline.processed[1].Link != "https://cafef.vn/b-2025.chn" {
		t.Fatalf("unexpected second candidate %+v", h.pipeline.processed[1])
	}
	if strings.Join(h.crawler.sources, ",") != "https://cafef.vn" {
		t.Fatalf("crawl must use configured sources, got %v", h.crawler.sources)
	}
}

func TestRunOnceIncompleteCandidateDoesNotClaimLink(t *testing.T) {
	h := newHarness(
		crawler.Candidate{Title: "  ", Link: "https://cafef.vn/x-2024.chn"},
		crawler.Candidate{Title: "Bài đầy đủ", Link: "https://cafef.vn/x-2024.chn"},
	)
	sum := h.cycle.RunOnce(context.Background(), alwaysRunning)
	if sum.Rejected != 1 || sum.Queued != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestRunOnceStopsAtCheckpoint(t *testing.T) {
	h := newHarness(
		crawler.Candidate{Title: "Một", Link: "https://cafef.vn/1-2024.chn"},
		crawler.Candidate{Title: "Hai", Link: "https://cafef.vn/2-2024.chn"},
		crawler.Candidate{Title: "Ba", Link: "https://cafef.vn/3-2024.chn"},
	)
	var calls atomic.Int64
	running := func() bool { return calls.Add(1) <= 1 }

	sum := h.cycle.RunOnce(context.Background(), running)
	if !sum.Stopped || len(h.pipeline.processed) != 1 {
		t.Fatalf("expected stop after one candidate, got %+v (%d processed)", sum, len(h.pipeline.processed))
	}
	if !h.logged("Crawl cycle: stop requested") {
		t.Fatalf("expected stop to be logged")
	}
}

func TestRunOnceNoArticles(t *testing.T) {
	h := newHarness()
	sum := h.cycle.RunOnce(context.Background(), alwaysRunning)
	if sum.Candidates != 0 || len(h.pipeline.processed) != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if !h.logged("Crawl cycle: no articles found") {
		t.Fatalf("expected the empty crawl to be logged")
	}
}

func TestRunOnceReportsTrends(t *testing.T) {
	h := newHarness()
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	h.log.entries = []logstore.Entry{
		{Link: "a", Topics: []string{"Kinh tế", "Thể thao"}, Timestamp: now.Add(-time.Hour)},
		{Link: "b", Topics: []string{"Kinh tế"}, Timestamp: now.Add(-20 * time.Hour)},
		{Link: "c", Topics: []string{"Giải trí"}, Timestamp: now.Add(-5 * 24 * time.Hour)},
	}
	h.cycle.RunOnce(context.Background(), alwaysRunning)

	var found bool
	for _, e := range h.hook.AllEntries() {
		if strings.HasPrefix(e.Message, "Hot topics:") {
			found = true
			if e.Message != "Hot topics: Kinh tế, Thể thao" {
				t.Fatalf("unexpected trend line %q", e.Message)
			}
		}
	}
	if !found {
		t.Fatalf("expected trending topics to be logged")
	}
}

func TestRunOnceCancelledDuringDelay(t *testing.T) {
	h := newHarness(
		crawler.Candidate{Title: "Một", Link: "https://cafef.vn/1-2024.chn"},
		crawler.Candidate{Title: "Hai", Link: "https://cafef.vn/2-2024.chn"},
	)
	h.cycle.candidateDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	h.pipeline.status = pipeline.StatusSkipped
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	sum := h.cycle.RunOnce(ctx, alwaysRunning)
	if !sum.Stopped || sum.Skipped != 1 {
		t.Fatalf("expected cancellation during the delay, got %+v", sum)
	}
}
