// Package mirror keeps a surlign instance loosely synchronized with a remote
// peer. Local changes are pushed asynchronously in batches; remote changes
// are pulled on demand and merged last-write-wins by the service layer.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/surlign/highlighter"
)

// Client pushes highlight changes to a peer's /api/mirror/push endpoint.
// It batches asynchronously: a 1024-capacity channel, batches of up to 64,
// flushed every second.
type Client struct {
	base   string
	client *http.Client
	ch     chan *highlighter.Highlight
	done   chan struct{}
	once   sync.Once
}

// New creates a Client pushing to the peer at base (scheme://host[:port]).
// If client is nil, a default client with 5s timeout is used.
func New(base string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	c := &Client{
		base:   base,
		client: client,
		ch:     make(chan *highlighter.Highlight, 1024),
		done:   make(chan struct{}),
	}
	go c.flushLoop()
	return c
}

// PushAsync queues a highlight for async push. Non-blocking; drops if the
// buffer is full — the next pull reconciles anything dropped.
func (c *Client) PushAsync(h *highlighter.Highlight) {
	select {
	case c.ch <- h:
	default:
	}
}

// Close drains the buffer and stops the flush goroutine.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.ch)
		<-c.done
	})
	return nil
}

// Pull fetches the peer's changes since the given epoch-millisecond
// timestamp and merges them into svc. Returns the number applied.
func (c *Client) Pull(ctx context.Context, svc *highlighter.Service, since int64) (int, error) {
	u := c.base + "/api/mirror/changes?since=" + url.QueryEscape(strconv.FormatInt(since, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pull from %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("pull from %s: status %d", c.base, resp.StatusCode)
	}

	var incoming []*highlighter.Highlight
	if err := json.NewDecoder(resp.Body).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode pull body: %w", err)
	}
	return svc.MergeRemote(ctx, incoming)
}

func (c *Client) flushLoop() {
	defer close(c.done)

	batch := make([]*highlighter.Highlight, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case h, ok := <-c.ch:
			if !ok {
				c.flushBatch(batch)
				return
			}
			batch = append(batch, h)
			if len(batch) >= 64 {
				c.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *Client) flushBatch(batch []*highlighter.Highlight) {
	if len(batch) == 0 {
		return
	}

	body, err := json.Marshal(batch)
	if err != nil {
		slog.Error("mirror: marshal", "error", err)
		return
	}

	resp, err := c.client.Post(c.base+"/api/mirror/push", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("mirror: push", "error", err, "peer", c.base, "highlights", len(batch))
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Error("mirror: push rejected", "status", resp.StatusCode, "highlights", len(batch))
	}
}
