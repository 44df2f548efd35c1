package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/agency-portal-api/pkg/config"
	appErrors "github.com/noah-isme/agency-portal-api/pkg/errors"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// Client uploads objects to the hosted media bucket over its REST API.
type Client struct {
	endpoint   string
	apiKey     string
	bucket     string
	publicBase string
	maxBytes   int64
	httpClient *http.Client
	now        func() time.Time
}

// NewClient builds a media client from configuration.
func NewClient(cfg config.MediaConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = fmt.Sprintf("%s/storage/v1/object/public/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
		maxBytes:   cfg.MaxFileSizeBytes,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Upload stores r under folder with a collision-free name and returns its public URL.
func (c *Client) Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (string, error) {
	if c.endpoint == "" || c.apiKey == "" {
		return "", appErrors.Upload(nil, "media host is not configured")
	}

	limit := c.maxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", appErrors.Upload(err, "read upload")
	}
	if int64(len(body)) > limit {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", limit))
	}
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	key := c.ObjectKey(folder, filename)
	target := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.endpoint, c.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return "", appErrors.Upload(err, "build upload request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", appErrors.Upload(err, "send upload request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", appErrors.Upload(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), "media host rejected upload")
	}

	return c.PublicURL(key), nil
}

// ObjectKey builds folder/YYYYMMDD-uuid-name.
func (c *Client) ObjectKey(folder, filename string) string {
	name := unsafeFilenameChars.ReplaceAllString(path.Base(filename), "_")
	if name == "" || name == "." || name == "_" {
		name = "file"
	}
	key := fmt.Sprintf("%s-%s-%s", c.now().UTC().Format("20060102"), uuid.NewString(), name)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return key
	}
	return folder + "/" + key
}

// PublicURL is the browser-facing address of an uploaded object.
func (c *Client) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.publicBase + "/" + strings.Join(segments, "/")
}
