package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
	"strconv"
	"sync"

	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/pkg/logging"
)

// Comment is one comment under a post.
type Comment struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Publish creates a page post and returns its id. With replyTo set the
// message is posted as a comment on that object instead. Photos are
// uploaded unpublished and attached to one feed post; when none upload the
// post falls back to text only. A video item is uploaded to /videos.
func (c *Client) Publish(ctx context.Context, creds Credentials, message string, media []queue.MediaItem, replyTo string) (string, error) {
	if err := creds.valid(); err != nil {
		return "", err
	}
	if replyTo != "" {
		return c.Comment(ctx, creds, replyTo, message)
	}

	valid := media[:0:0]
	for _, m := range media {
		if len(m.Data) > 0 {
			valid = append(valid, m)
		}
	}
	for _, m := range valid {
		if m.IsVideo() {
			return c.uploadVideo(ctx, creds, message, m)
		}
	}
	if len(valid) == 0 {
		return c.feedText(ctx, creds, message)
	}

	photoIDs := c.uploadPhotos(ctx, creds, valid)
	if len(photoIDs) == 0 {
		c.logger.WithField("photos", len(valid)).Error("Facebook: no photo uploaded, posting text only")
		return c.feedText(ctx, creds, message)
	}

	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", creds.Token)
	for i, id := range photoIDs {
		attached, _ := json.Marshal(map[string]string{"media_fbid": id})
		form.Set("attached_media["+strconv.Itoa(i)+"]", string(attached))
	}
	var res idResponse
	if err := c.postForm(ctx, c.endpoint(creds, creds.PageID, "feed"), form, &res); err != nil {
		return "", fmt.Errorf("publish feed post: %w", err)
	}
	return requireID(res)
}

// Comment posts message under objectID and returns the comment id.
func (c *Client) Comment(ctx context.Context, creds Credentials, objectID, message string) (string, error) {
	if err := creds.valid(); err != nil {
		return "", err
	}
	form := url.Values{"message": {message}, "access_token": {creds.Token}}
	var res idResponse
	if err := c.postForm(ctx, c.endpoint(creds, objectID, "comments"), form, &res); err != nil {
		return "", fmt.Errorf("comment on %s: %w", objectID, err)
	}
	return requireID(res)
}

// React adds a reaction (LIKE, LOVE, WOW, HAHA, SAD, ANGRY) to a post or comment.
func (c *Client) React(ctx context.Context, creds Credentials, objectID, reaction string) error {
	if reaction == "" {
		reaction = "LIKE"
	}
	form := url.Values{"type": {reaction}, "access_token": {creds.Token}}
	if err := c.postForm(ctx, c.endpoint(creds, objectID, "reactions"), form, nil); err != nil {
		return fmt.Errorf("react %s on %s: %w", reaction, objectID, err)
	}
	return nil
}

// ListComments returns the first page of comments on postID.
func (c *Client) ListComments(ctx context.Context, creds Credentials, postID string) ([]Comment, error) {
	query := url.Values{"access_token": {creds.Token}, "fields": {"id,message"}, "limit": {"100"}}
	var res struct {
		Data []Comment `json:"data"`
	}
	if err := c.get(ctx, c.endpoint(creds, postID, "comments"), query, &res); err != nil {
		return nil, fmt.Errorf("list comments of %s: %w", postID, err)
	}
	return res.Data, nil
}

// ShareStory publishes imageURL as a page story linking to postURL.
func (c *Client) ShareStory(ctx context.Context, creds Credentials, imageURL, postURL string) (string, error) {
	if err := creds.valid(); err != nil {
		return "", err
	}
	form := url.Values{
		"access_token": {creds.Token},
		"url":          {imageURL},
		"published":    {"true"},
		"is_post":      {"false"},
		"link":         {postURL},
	}
	var res idResponse
	if err := c.postForm(ctx, c.endpoint(creds, creds.PageID, "photos"), form, &res); err != nil {
		return "", fmt.Errorf("share story: %w", err)
	}
	return requireID(res)
}

func (c *Client) feedText(ctx context.Context, creds Credentials, message string) (string, error) {
	form := url.Values{"message": {message}, "access_token": {creds.Token}}
	var res idResponse
	if err := c.postForm(ctx, c.endpoint(creds, creds.PageID, "feed"), form, &res); err != nil {
		return "", fmt.Errorf("publish text post: %w", err)
	}
	return requireID(res)
}

// uploadPhotos uploads every item unpublished, concurrently. Failed uploads
// are logged and left out; the surviving ids keep media order.
func (c *Client) uploadPhotos(ctx context.Context, creds Credentials, media []queue.MediaItem) []string {
	ids := make([]string, len(media))
	var wg sync.WaitGroup
	for i, m := range media {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := c.uploadPhoto(ctx, creds, m)
			if err != nil {
				c.logger.WithError(err).WithField("filename", m.Filename).Error("Facebook: photo upload failed")
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	out := ids[:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func (c *Client) uploadPhoto(ctx context.Context, creds Credentials, m queue.MediaItem) (string, error) {
	body, contentType, err := multipartBody(map[string]string{
		"access_token": creds.Token,
		"published":    "false",
	}, m)
	if err != nil {
		return "", err
	}
	var res idResponse
	if err := c.postMultipart(ctx, c.endpoint(creds, creds.PageID, "photos"), body, contentType, &res); err != nil {
		return "", err
	}
	return requireID(res)
}

func (c *Client) uploadVideo(ctx context.Context, creds Credentials, description string, m queue.MediaItem) (string, error) {
	body, contentType, err := multipartBody(map[string]string{
		"access_token": creds.Token,
		"description":  description,
		"published":    "true",
	}, m)
	if err != nil {
		return "", err
	}
	var res idResponse
	if err := c.postMultipart(ctx, c.endpoint(creds, creds.PageID, "videos"), body, contentType, &res); err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	c.logger.WithFields(logging.Fields{"filename": m.Filename, "bytes": len(m.Data)}).Info("Facebook: video uploaded")
	return requireID(res)
}

func multipartBody(fields map[string]string, m queue.MediaItem) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	name := m.Filename
	if name == "" {
		name = "upload.bin"
	}
	part, err := w.CreateFormFile("source", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(m.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func requireID(res idResponse) (string, error) {
	if res.PostID != "" {
		return res.PostID, nil
	}
	if res.ID != "" {
		return res.ID, nil
	}
	return "", ErrNoPostID
}
