// Package remote is the HTTP transport for the photo feeds API.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/photofeed/internal/model"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

// MaxPageSize is the largest page the server returns. Larger requests come
// back short and would read as the end of the feed.
const MaxPageSize = 100

// Source is what the sync layer needs from the remote.
type Source interface {
	FreshCount(ctx context.Context, feed model.FeedType, owner uuid.UUID, after model.Cursor) (int, error)
	Page(ctx context.Context, feed model.FeedType, owner uuid.UUID, before model.Cursor, limit int) ([]model.Photo, error)
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Status, e.Body)
}

// FreshCountResponse is the body of the fresh-count endpoint.
type FreshCountResponse struct {
	Count int `json:"count"`
}

// Client talks to a photofeed server. Retries are left to the http.Client's transport.
type Client struct {
	base *url.URL
	http *http.Client
	log  *log.Helper
}

// Ensure Client implements Source interface.
var _ Source = (*Client)(nil)

// NewClient creates a client for the API rooted at baseURL.
// A nil httpClient gets a client with a 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client, logger log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base: u,
		http: httpClient,
		log:  log.NewHelper(log.With(logger, "module", "remote")),
	}, nil
}

// FreshCount asks how many photos of feed were uploaded after the cursor.
func (c *Client) FreshCount(ctx context.Context, feed model.FeedType, owner uuid.UUID, after model.Cursor) (int, error) {
	q := ownerQuery(owner)
	q.Set("after", strconv.FormatInt(int64(after), 10))
	body, err := c.get(ctx, c.endpoint(feed, "fresh-count", q))
	if err != nil {
		return 0, err
	}
	defer body.Close()

	var resp FreshCountResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("decode fresh count: %w", err)
	}
	return resp.Count, nil
}

// Page fetches up to limit photos uploaded strictly before the cursor, newest first.
func (c *Client) Page(ctx context.Context, feed model.FeedType, owner uuid.UUID, before model.Cursor, limit int) ([]model.Photo, error) {
	q := ownerQuery(owner)
	q.Set("before", strconv.FormatInt(int64(before), 10))
	q.Set("limit", strconv.Itoa(limit))
	body, err := c.get(ctx, c.endpoint(feed, "photos.atom", q))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	// gofeed parsers keep per-parse state; splice fetches run concurrently.
	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", feed, err)
	}
	// A dropped entry would make a full page look like the end of the feed,
	// so one bad entry fails the whole page.
	photos := make([]model.Photo, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		p, err := photoFromItem(feed, item)
		if err != nil {
			c.log.WithContext(ctx).Errorw("msg", "malformed entry", "guid", item.GUID, "error", err)
			return nil, fmt.Errorf("parse %s page: %w", feed, err)
		}
		photos = append(photos, p)
	}
	return photos, nil
}

func (c *Client) endpoint(feed model.FeedType, name string, q url.Values) string {
	u := *c.base
	u.Path = u.Path + "/api/feeds/" + url.PathEscape(string(feed)) + "/" + name
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &StatusError{URL: target, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp.Body, nil
}

func ownerQuery(owner uuid.UUID) url.Values {
	q := url.Values{}
	if owner != uuid.Nil {
		q.Set("owner", owner.String())
	}
	return q
}

// EntryID is the Atom entry id of a photo. It carries the upload time in
// milliseconds because Atom dates only have whole seconds.
func EntryID(feed model.FeedType, id int64, uploadedOn time.Time) string {
	return fmt.Sprintf("urn:photofeed:%s:%d:%d", feed, id, uploadedOn.UnixMilli())
}

// parseEntryID splits an id made by EntryID into the photo id and upload time.
func parseEntryID(feed model.FeedType, guid string) (int64, time.Time, error) {
	parts := strings.Split(guid, ":")
	if len(parts) != 5 || parts[0] != "urn" || parts[1] != "photofeed" || parts[2] != string(feed) {
		return 0, time.Time{}, fmt.Errorf("entry id %q is not a %s photo", guid, feed)
	}
	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("entry id %q: %w", guid, err)
	}
	ms, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("entry id %q: %w", guid, err)
	}
	return id, time.UnixMilli(ms).UTC(), nil
}

func photoFromItem(feed model.FeedType, item *gofeed.Item) (model.Photo, error) {
	id, uploadedOn, err := parseEntryID(feed, item.GUID)
	if err != nil {
		return model.Photo{}, err
	}
	p := model.Photo{
		ID:         id,
		FeedType:   feed,
		Name:       item.Title,
		URL:        item.Link,
		UploadedOn: uploadedOn,
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		if owner, err := uuid.Parse(item.Authors[0].Name); err == nil {
			p.OwnerID = owner
		}
	}
	return p, nil
}
