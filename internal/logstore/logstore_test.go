package logstore

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"frameworks/crowsnest/pkg/logging"
)

func TestSimilarityProperties(t *testing.T) {
	t.Parallel()

	if got := Similarity("Giá vàng tăng mạnh", "Giá vàng tăng mạnh"); got != 1 {
		t.Fatalf("identical strings must score 1, got %v", got)
	}
	if got := Similarity("abcd", "wxyz"); got != 0 {
		t.Fatalf("disjoint strings must score 0, got %v", got)
	}
	a, b := "Chứng khoán hồi phục", "Chứng khoán lao dốc"
	if math.Abs(Similarity(a, b)-Similarity(b, a)) > 1e-12 {
		t.Fatalf("similarity must be symmetric")
	}
	if got := Similarity("a b", "ab"); got != 1 {
		t.Fatalf("whitespace is ignored, got %v", got)
	}
}

func TestIsTitleSimilarBoundaryIsStrict(t *testing.T) {
	t.Parallel()

	// 20 bigrams each, 17 shared: 2*17/40 == 0.85 exactly
	logged := "abcdefghijklmnopqrstu"
	atThreshold := "abcdefghijklmnopqrXYZ"
	if got := Similarity(logged, atThreshold); got != 0.85 {
		t.Fatalf("fixture should score exactly 0.85, got %v", got)
	}
	entries := []Entry{{Link: "http://x/0", Title: logged}}
	if IsTitleSimilar(atThreshold, entries, DefaultTitleThreshold) {
		t.Fatalf("a score equal to the threshold must not count as similar")
	}

	// 18 shared bigrams: 0.9
	above := "abcdefghijklmnopqrsXY"
	if !IsTitleSimilar(above, entries, DefaultTitleThreshold) {
		t.Fatalf("expected %q to be similar (score %v)", above, Similarity(logged, above))
	}
}

func TestLookups(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{Link: "http://x/1", Title: "one", ImageHash: "h1"},
		{Link: "http://x/2", Title: "two"},
	}
	if !IsLinkPosted("http://x/2", entries) || IsLinkPosted("http://x/2/", entries) {
		t.Fatalf("link match must be exact")
	}
	if !IsImageHashPosted("h1", entries) || IsImageHashPosted("h2", entries) {
		t.Fatalf("unexpected hash lookup result")
	}
	if IsImageHashPosted("", entries) {
		t.Fatalf("empty hash must never match")
	}
}

func TestCountTodayAndTrends(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Topics: []string{"Kinh tế"}, Timestamp: now.Add(-72 * time.Hour)},
		{Topics: []string{"Xã hội", "Kinh tế"}, Timestamp: now.Add(-30 * time.Hour)},
		{Topics: []string{"Kinh tế", "Thể thao"}, Timestamp: now.Add(-time.Hour)},
		{Topics: []string{"Thể thao"}, Timestamp: now},
	}
	if got := CountToday(entries, now); got != 2 {
		t.Fatalf("expected 2 posts today, got %d", got)
	}

	trends := TrendingTopics(entries, now, 2, 2)
	if len(trends) != 2 {
		t.Fatalf("expected top 2, got %v", trends)
	}
	if trends[0] != (TopicCount{Topic: "Kinh tế", Count: 2}) || trends[1] != (TopicCount{Topic: "Thể thao", Count: 2}) {
		t.Fatalf("unexpected trends %v", trends)
	}
}

func TestFileStoreAppendLoadOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "log.json")
	store := NewFileStore(path, nil)
	ctx := context.Background()

	got, err := store.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history, got %v %v", got, err)
	}

	for i, link := range []string{"http://x/1", "http://x/2", "http://x/3"} {
		if err := store.Append(ctx, Entry{Link: link, ImageHash: "h", Timestamp: time.Unix(int64(i), 0).UTC()}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// a fresh instance sees what was persisted
	got, err = NewFileStore(path, nil).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 || got[0].Link != "http://x/1" || got[2].Link != "http://x/3" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestFileStoreCorruptResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	if err := os.WriteFile(path, []byte("{not an array"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	logger := logging.NewDiscardLogger()
	hook := test.NewLocal(logger)
	store := NewFileStore(path, logger)

	got, err := store.Load(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty history without error, got %v %v", got, err)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logging.ErrorLevel {
		t.Fatalf("expected the reset to be logged")
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "[]" {
		t.Fatalf("expected file reset to [], got %q", raw)
	}

	if err := store.Append(context.Background(), Entry{Link: "http://x/1"}); err != nil {
		t.Fatalf("append after reset: %v", err)
	}
}

func TestFileStoreAppendFailureIsHard(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	// parent "directory" is a regular file
	store := NewFileStore(filepath.Join(blocker, "log.json"), nil)
	if err := store.Append(context.Background(), Entry{Link: "http://x/1"}); err == nil {
		t.Fatalf("expected append error")
	}
}
