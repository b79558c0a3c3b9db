// Package images is the HTTP client for the external image storage endpoint.
// Uploads go out as multipart form submissions keyed by miniature id; the
// display path is a pure local computation so rendering a list never needs a
// storage round trip.
package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one storage round trip when the constructor receives
// a non-positive duration.
const DefaultTimeout = 30 * time.Second

// Client talks to the storage endpoint. Construct with NewClient; safe for
// concurrent use.
type Client struct {
	baseURL       string
	publicBaseURL string
	http          *http.Client
	log           zerolog.Logger
}

// NewClient builds a storage client. baseURL is the upload/delete endpoint;
// publicBaseURL prefixes display paths (typically a CDN root).
func NewClient(baseURL, publicBaseURL string, timeout time.Duration, lg zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		http:          &http.Client{Timeout: timeout},
		log:           lg,
	}
}

// PathFor computes the storage-relative path of a miniature's image. Images
// are bucketed a thousand per directory to keep listings manageable:
// minis/0/42.webp, minis/1/1042.webp, and so on.
func PathFor(id int64) string {
	return fmt.Sprintf("minis/%d/%d.webp", id/1000, id)
}

// URLFor computes the public display URL for a miniature's image.
func (c *Client) URLFor(id int64) string {
	return c.publicBaseURL + "/" + PathFor(id)
}

// Upload submits the image bytes for a miniature as a multipart form. The
// endpoint overwrites any existing image for the id.
func (c *Client) Upload(ctx context.Context, id int64, filename string, r io.Reader) error {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("id", strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("images: write id field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("images: create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("images: copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("images: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return fmt.Errorf("images: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, "upload", id)
}

// Delete removes a miniature's stored image.
func (c *Client) Delete(ctx context.Context, id int64) error {
	form := url.Values{"id": {strconv.FormatInt(id, 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/delete", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("images: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, "delete", id)
}

// do executes the request and folds non-2xx statuses into errors.
func (c *Client) do(req *http.Request, op string, id int64) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("images: %s id=%d: %w", op, id, err)
	}
	defer resp.Body.Close()
	// Drain so the connection is reusable.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck

	c.log.Debug().
		Str("op", op).
		Int64("miniature_id", id).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("image storage call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("images: %s id=%d: unexpected status %d", op, id, resp.StatusCode)
	}
	return nil
}
