package facebook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"frameworks/crowsnest/internal/queue"
)

type graphCall struct {
	Method string
	Path   string
	Form   map[string]string
	File   string
}

type fakeGraph struct {
	mu    sync.Mutex
	calls []graphCall
	seq   int64
	// failPhotos makes unpublished uploads whose filename matches fail
	failPhotos string
	noID       bool
}

func (g *fakeGraph) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := graphCall{Method: r.Method, Path: r.URL.Path, Form: map[string]string{}}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if f, hdr, err := r.FormFile("source"); err == nil {
				data, _ := io.ReadAll(f)
				call.File = hdr.Filename + ":" + string(data)
			}
		} else {
			_ = r.ParseForm()
		}
		for k := range r.Form {
			call.Form[k] = r.Form.Get(k)
		}
		g.mu.Lock()
		g.calls = append(g.calls, call)
		g.mu.Unlock()

		if g.failPhotos != "" && strings.HasPrefix(call.File, g.failPhotos) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid image","type":"OAuthException","code":324}}`))
			return
		}
		if g.noID {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/comments") && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"data":[{"id":"c1","message":"hay"},{"id":"c2","message":"ok"}]}`))
		case strings.HasSuffix(r.URL.Path, "/reactions"):
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			_, _ = fmt.Fprintf(w, `{"id":"obj-%d"}`, atomic.AddInt64(&g.seq, 1))
		}
	})
}

func (g *fakeGraph) byPath(suffix string) []graphCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []graphCall
	for _, c := range g.calls {
		if strings.HasSuffix(c.Path, suffix) {
			out = append(out, c)
		}
	}
	return out
}

func setup(t *testing.T) (*fakeGraph, *Client, Credentials) {
	t.Helper()
	g := &fakeGraph{}
	srv := httptest.NewServer(g.handler(t))
	t.Cleanup(srv.Close)
	return g, NewClient(Config{BaseURL: srv.URL}), Credentials{PageID: "page1", Token: "tok", Version: "v17.0"}
}

func TestPublishWithPhotos(t *testing.T) {
	g, c, creds := setup(t)
	media := []queue.MediaItem{
		{Data: []byte("one"), Filename: "image_0.png"},
		{Data: nil, Filename: "empty.png"},
		{Data: []byte("two"), Filename: "image_1.png"},
	}

	id, err := c.Publish(context.Background(), creds, "Xin chào", media, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatalf("expected post id")
	}

	photos := g.byPath("/v17.0/page1/photos")
	if len(photos) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(photos))
	}
	for _, p := range photos {
		if p.Form["published"] != "false" || p.Form["access_token"] != "tok" {
			t.Fatalf("unexpected upload form %+v", p.Form)
		}
	}
	feed := g.byPath("/v17.0/page1/feed")
	if len(feed) != 1 {
		t.Fatalf("expected one feed post, got %d", len(feed))
	}
	f := feed[0].Form
	if f["message"] != "Xin chào" || !strings.Contains(f["attached_media[0]"], `"media_fbid":"obj-`) || f["attached_media[1]"] == "" {
		t.Fatalf("unexpected feed form %+v", f)
	}
	if _, ok := f["attached_media[2]"]; ok {
		t.Fatalf("empty media item must not be attached")
	}
}

func TestPublishFallsBackToTextWhenUploadsFail(t *testing.T) {
	g, c, creds := setup(t)
	g.failPhotos = "image_"

	_, err := c.Publish(context.Background(), creds, "Chỉ chữ", []queue.MediaItem{{Data: []byte("x"), Filename: "image_0.png"}}, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	feed := g.byPath("/feed")
	if len(feed) != 1 {
		t.Fatalf("expected text fallback post, got %d", len(feed))
	}
	if _, ok := feed[0].Form["attached_media[0]"]; ok {
		t.Fatalf("text fallback must not attach media")
	}
}

func TestPublishCommentAndVideo(t *testing.T) {
	g, c, creds := setup(t)

	if _, err := c.Publish(context.Background(), creds, "https://news.test/a-1", nil, "page1_99"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	comments := g.byPath("/page1_99/comments")
	if len(comments) != 1 || comments[0].Form["message"] != "https://news.test/a-1" {
		t.Fatalf("unexpected comment calls %+v", comments)
	}

	if _, err := c.Publish(context.Background(), creds, "clip", []queue.MediaItem{{Data: []byte("vid"), Filename: "reel.mp4"}}, ""); err != nil {
		t.Fatalf("video: %v", err)
	}
	videos := g.byPath("/page1/videos")
	if len(videos) != 1 || videos[0].File != "reel.mp4:vid" || videos[0].Form["description"] != "clip" {
		t.Fatalf("unexpected video upload %+v", videos)
	}
	if len(g.byPath("/feed")) != 0 {
		t.Fatalf("video must not create a feed post")
	}
}

func TestPublishErrors(t *testing.T) {
	g, c, creds := setup(t)

	if _, err := c.Publish(context.Background(), Credentials{}, "x", nil, ""); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}

	g.noID = true
	if _, err := c.Publish(context.Background(), creds, "x", nil, ""); !errors.Is(err, ErrNoPostID) {
		t.Fatalf("expected ErrNoPostID, got %v", err)
	}
}

func TestGraphErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Publish(context.Background(), Credentials{PageID: "p", Token: "bad"}, "x", nil, "")
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gerr.Code != 190 || gerr.Status != http.StatusBadRequest || !strings.Contains(gerr.Error(), "Invalid OAuth") {
		t.Fatalf("unexpected graph error %+v", gerr)
	}
}

func TestReactListAndStory(t *testing.T) {
	g, c, creds := setup(t)
	ctx := context.Background()

	if err := c.React(ctx, creds, "post1", ""); err != nil {
		t.Fatalf("react: %v", err)
	}
	if r := g.byPath("/post1/reactions"); len(r) != 1 || r[0].Form["type"] != "LIKE" {
		t.Fatalf("unexpected reaction calls %+v", r)
	}

	comments, err := c.ListComments(ctx, creds, "post1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(comments) != 2 || comments[1].ID != "c2" {
		t.Fatalf("unexpected comments %+v", comments)
	}

	if _, err := c.ShareStory(ctx, creds, "https://img.test/1.jpg", PostURL("page1", "post1")); err != nil {
		t.Fatalf("story: %v", err)
	}
	story := g.byPath("/page1/photos")
	if len(story) != 1 {
		t.Fatalf("expected story call")
	}
	f := story[0].Form
	if f["is_post"] != "false" || f["published"] != "true" || f["link"] != "https://www.facebook.com/page1/posts/post1" {
		t.Fatalf("unexpected story form %+v", f)
	}
}
