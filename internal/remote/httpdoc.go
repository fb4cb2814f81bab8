package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultPollInterval is how often poll-based subscriptions refetch a
// collection when the caller does not override it.
const DefaultPollInterval = 30 * time.Second

// HTTPClient talks to a document-store REST API:
//
//	POST   {base}/v1/users/{uid}/{kind}          create, returns {"id": ...}
//	PATCH  {base}/v1/users/{uid}/{kind}/{id}     merge fields
//	DELETE {base}/v1/users/{uid}/{kind}/{id}
//	GET    {base}/v1/users/{uid}/{kind}          full collection listing
//
// The server stamps the updatedAt field on every write. Subscriptions are
// poll-based: a goroutine refetches the collection on an interval and emits a
// snapshot when the payload changed. Poll failures are logged and treated as
// "no update".
type HTTPClient struct {
	base string
	http *http.Client
	poll time.Duration
	log  *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithTimeout bounds each request. Default 10s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.http.Timeout = d }
}

// WithPollInterval sets the subscription poll cadence.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.poll = d }
}

// WithLogger overrides the logger used for out-of-band subscription errors.
func WithLogger(log *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.log = log }
}

// NewHTTPClient creates a client for the document store at base.
func NewHTTPClient(base string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
		poll: DefaultPollInterval,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) collectionURL(user string, kind Kind) string {
	return fmt.Sprintf("%s/v1/users/%s/%s", c.base, url.PathEscape(user), kind)
}

func (c *HTTPClient) documentURL(user string, kind Kind, id string) string {
	return c.collectionURL(user, kind) + "/" + url.PathEscape(id)
}

// Create POSTs a new document and returns the server-assigned id.
func (c *HTTPClient) Create(ctx context.Context, user string, kind Kind, doc Doc) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.collectionURL(user, kind), doc, "create")
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("create %s: decode response: %w", kind, err)
	}
	if created.ID == "" {
		return "", &RejectedError{Op: "create", Reason: "server returned no document id", Permanent: true}
	}
	return created.ID, nil
}

// Merge PATCHes fields into an existing document (upsert semantics).
func (c *HTTPClient) Merge(ctx context.Context, user string, kind Kind, id string, doc Doc) error {
	_, err := c.do(ctx, http.MethodPatch, c.documentURL(user, kind, id), doc, "merge")
	return err
}

// Delete removes a document. A 404 counts as success so retried deletes stay
// idempotent.
func (c *HTTPClient) Delete(ctx context.Context, user string, kind Kind, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.documentURL(user, kind, id), nil, "delete")
	var rej *RejectedError
	if errors.As(err, &rej) && rej.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// Subscribe starts a poll loop over the collection. The first fetch happens
// immediately; afterwards the collection is refetched every poll interval and
// a snapshot is emitted whenever the payload differs from the last one.
func (c *HTTPClient) Subscribe(user string, kind Kind) *Subscription {
	ch := make(chan Snapshot, 1)
	ctx, cancelCtx := context.WithCancel(context.Background())

	go func() {
		defer close(ch)

		var last []byte
		ticker := time.NewTicker(c.poll)
		defer ticker.Stop()

		for {
			body, err := c.fetch(ctx, user, kind)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Out of band: a failed poll means "no update", not data loss.
				c.log.Warn("remote: poll failed", "user", user, "kind", kind, "error", err)
			} else if !bytes.Equal(body, last) {
				last = body
				snap, err := decodeSnapshot(kind, body)
				if err != nil {
					c.log.Warn("remote: malformed collection listing", "kind", kind, "error", err)
				} else {
					deliver(ch, snap)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return NewSubscription(ch, cancelCtx)
}

// fetch GETs the full collection listing.
func (c *HTTPClient) fetch(ctx context.Context, user string, kind Kind) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.collectionURL(user, kind), nil, "list")
}

// decodeSnapshot parses a collection listing: a JSON array of objects with
// an "id" and a "fields" member.
func decodeSnapshot(kind Kind, body []byte) (Snapshot, error) {
	var raw []struct {
		ID     string `json:"id"`
		Fields Doc    `json:"fields"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Snapshot{}, err
	}

	docs := make([]Document, 0, len(raw))
	for _, d := range raw {
		if d.ID == "" {
			continue
		}
		fields := d.Fields
		if fields == nil {
			fields = Doc{}
		}
		docs = append(docs, Document{ID: d.ID, Fields: fields})
	}
	return Snapshot{Kind: kind, Docs: docs}, nil
}

// do executes one request and maps the response onto the error taxonomy:
// transport failures and 5xx/408/429 are ErrNetwork (retryable), other non-2xx
// statuses are RejectedError (permanent).
func (c *HTTPClient) do(ctx context.Context, method, u string, doc Doc, op string) ([]byte, error) {
	var reqBody io.Reader
	if doc != nil {
		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: encode document: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if doc != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", op, u, ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w: %v", op, u, ErrNetwork, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s %s: %w: status %d", op, u, ErrNetwork, resp.StatusCode)
	default:
		return nil, &RejectedError{
			Op:        op,
			Reason:    fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(body, 200)),
			Permanent: true,
			Status:    resp.StatusCode,
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
