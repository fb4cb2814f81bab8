package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type colKey struct {
	user string
	kind Kind
}

// MemoryClient is an in-process Client. It backs tests (with deterministic
// ids, an injectable clock, and fault injection) and serves as the offline
// default when no remote endpoint is configured.
//
// Thread-safe; snapshot fan-out is latest-value-wins per subscriber, matching
// the contract that intermediate snapshots may be skipped.
type MemoryClient struct {
	mu       sync.Mutex
	docs     map[colKey]map[string]Doc
	subs     map[colKey]map[int]chan Snapshot
	nextSub  int
	nextID   int
	failures map[string][]error
	now      func() time.Time
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithClock overrides the clock used to stamp document update timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryClient) { c.now = now }
}

// NewMemoryClient creates an empty in-process document store.
func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	c := &MemoryClient{
		docs:     make(map[colKey]map[string]Doc),
		subs:     make(map[colKey]map[int]chan Snapshot),
		failures: make(map[string][]error),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FailNext queues an error for the next call of the given op
// ("create", "merge" or "delete"). Multiple queued errors fail successive
// calls in order. Used by tests to simulate network failures and rejections.
func (c *MemoryClient) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], err)
}

// popFailure consumes the next queued error for op, if any.
// Caller must hold mu.
func (c *MemoryClient) popFailure(op string) error {
	queue := c.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	c.failures[op] = queue[1:]
	return err
}

// Create adds a document under a store-assigned id ("doc-1", "doc-2", ...)
// and stamps the server update timestamp.
func (c *MemoryClient) Create(ctx context.Context, user string, kind Kind, doc Doc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	if err := c.popFailure("create"); err != nil {
		c.mu.Unlock()
		return "", err
	}

	c.nextID++
	id := fmt.Sprintf("doc-%d", c.nextID)
	key := colKey{user, kind}
	if c.docs[key] == nil {
		c.docs[key] = make(map[string]Doc)
	}
	c.docs[key][id] = c.stamped(doc)
	c.fanOutLocked(key)
	c.mu.Unlock()
	return id, nil
}

// Merge upserts fields into a document, preserving fields absent from doc.
func (c *MemoryClient) Merge(ctx context.Context, user string, kind Kind, id string, doc Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.popFailure("merge"); err != nil {
		c.mu.Unlock()
		return err
	}

	key := colKey{user, kind}
	if c.docs[key] == nil {
		c.docs[key] = make(map[string]Doc)
	}
	existing := c.docs[key][id]
	if existing == nil {
		existing = make(Doc)
	}
	for k, v := range c.stamped(doc) {
		existing[k] = v
	}
	c.docs[key][id] = existing
	c.fanOutLocked(key)
	c.mu.Unlock()
	return nil
}

// Delete removes a document. Deleting a missing document is a no-op.
func (c *MemoryClient) Delete(ctx context.Context, user string, kind Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.popFailure("delete"); err != nil {
		c.mu.Unlock()
		return err
	}

	key := colKey{user, kind}
	delete(c.docs[key], id)
	c.fanOutLocked(key)
	c.mu.Unlock()
	return nil
}

// Subscribe registers a snapshot listener for the collection.
// The current state is delivered immediately.
func (c *MemoryClient) Subscribe(user string, kind Kind) *Subscription {
	key := colKey{user, kind}
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	if c.subs[key] == nil {
		c.subs[key] = make(map[int]chan Snapshot)
	}
	c.subs[key][id] = ch
	deliver(ch, c.buildSnapshotLocked(key))
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if subs := c.subs[key]; subs != nil {
			delete(subs, id)
		}
		close(ch)
	}
	return NewSubscription(ch, cancel)
}

// SetDocs replaces a collection wholesale and fans the new state out to
// subscribers. Used by tests and the scenario harness to model changes made
// by another device.
func (c *MemoryClient) SetDocs(user string, kind Kind, docs []Document) {
	key := colKey{user, kind}

	c.mu.Lock()
	m := make(map[string]Doc, len(docs))
	for _, d := range docs {
		m[d.ID] = cloneDoc(d.Fields)
	}
	c.docs[key] = m
	c.fanOutLocked(key)
	c.mu.Unlock()
}

// Docs returns the collection's documents ordered by id.
func (c *MemoryClient) Docs(user string, kind Kind) []Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildSnapshotLocked(colKey{user, kind}).Docs
}

// stamped copies doc and sets the server update timestamp.
func (c *MemoryClient) stamped(doc Doc) Doc {
	out := cloneDoc(doc)
	out[UpdatedAtField] = c.now().UnixMilli()
	return out
}

func cloneDoc(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// buildSnapshotLocked builds the collection snapshot, documents ordered by
// id. Caller must hold mu.
func (c *MemoryClient) buildSnapshotLocked(key colKey) Snapshot {
	docs := make([]Document, 0, len(c.docs[key]))
	for id, fields := range c.docs[key] {
		docs = append(docs, Document{ID: id, Fields: cloneDoc(fields)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return Snapshot{Kind: key.kind, Docs: docs}
}

// fanOutLocked delivers the current snapshot to every subscriber of the
// collection. Delivery never blocks (see deliver), so holding mu is safe and
// rules out racing a Cancel that closes the channel. Caller must hold mu.
func (c *MemoryClient) fanOutLocked(key colKey) {
	snap := c.buildSnapshotLocked(key)
	for _, ch := range c.subs[key] {
		deliver(ch, snap)
	}
}

// deliver publishes latest-value-wins: an undrained older snapshot is
// replaced by the newer one.
func deliver(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
