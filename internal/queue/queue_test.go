package queue

import (
	"fmt"
	"sync"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := New()
	for i := 0; i < 5; i++ {
		q.Push(Post{Link: fmt.Sprintf("http://x/%d", i)})
	}
	for i := 0; i < 5; i++ {
		p, ok := q.Shift()
		if !ok {
			t.Fatalf("queue drained early at %d", i)
		}
		if want := fmt.Sprintf("http://x/%d", i); p.Link != want {
			t.Fatalf("expected %s, got %s", want, p.Link)
		}
		if p.ID == "" || p.QueuedAt.IsZero() {
			t.Fatalf("expected id and queued time to be assigned")
		}
	}
	if _, ok := q.Shift(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestQueueRemoveByLinkKeepsOrder(t *testing.T) {
	t.Parallel()

	q := New()
	for _, link := range []string{"a", "b", "a", "c"} {
		q.Push(Post{Link: link})
	}
	if n := q.RemoveByLink("a"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if n := q.RemoveByLink("missing"); n != 0 {
		t.Fatalf("expected 0 removed, got %d", n)
	}
	snap := q.Snapshot()
	if len(snap) != 2 || snap[0].Link != "b" || snap[1].Link != "c" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestQueueConcurrentRemoveAndShift(t *testing.T) {
	t.Parallel()

	q := New()
	for i := 0; i < 200; i++ {
		q.Push(Post{Link: fmt.Sprintf("http://x/%d", i%10)})
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i += 2 {
			q.RemoveByLink(fmt.Sprintf("http://x/%d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for {
			if _, ok := q.Shift(); !ok {
				return
			}
		}
	}()
	wg.Wait()
	if q.Len() != 0 {
		t.Fatalf("expected drained queue, got %d", q.Len())
	}
}

func TestQueueImageReservation(t *testing.T) {
	t.Parallel()

	q := New()
	if q.ReserveImage("") {
		t.Fatalf("empty hash must not be reservable")
	}
	if !q.ReserveImage("h1") {
		t.Fatalf("first reservation should succeed")
	}
	if q.ReserveImage("h1") || !q.HasImage("h1") {
		t.Fatalf("second reservation must fail")
	}
	q.Push(Post{Link: "x", ImageHash: "h2"})
	if !q.HasImage("h2") {
		t.Fatalf("pushed hash should be claimed")
	}
	q.Shift()
	if !q.HasImage("h2") {
		t.Fatalf("claims outlive the queued post")
	}
}

func TestMediaItemIsVideo(t *testing.T) {
	t.Parallel()

	if !(MediaItem{Filename: "clip.MP4"}).IsVideo() {
		t.Fatalf("mp4 is video")
	}
	if (MediaItem{Filename: "image_0.png"}).IsVideo() {
		t.Fatalf("png is not video")
	}
}
