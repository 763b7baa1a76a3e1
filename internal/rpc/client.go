package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
)

type reply struct {
	single *Response
	batch  []Response
}

func (r reply) model() string {
	if r.single != nil {
		return r.single.Model
	}
	for _, resp := range r.batch {
		if resp.Model != "" {
			return resp.Model
		}
	}
	return ""
}

// Client multiplexes embedding calls over one request/response stream pair.
// It satisfies labelmatch.Embedder.
type Client struct {
	w       io.Writer
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan reply
	closed  bool

	modelID  string
	reported string
	done     chan struct{}
	logger   *log.Logger
}

// NewClient starts reading responses from r. Requests are written to w.
// The client stops when r reports EOF or an error; pending calls then fail with ErrClosed.
func NewClient(r io.Reader, w io.Writer, modelID string, logger *log.Logger) *Client {
	c := &Client{
		w:       w,
		pending: make(map[string]chan reply),
		modelID: modelID,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go c.readLoop(r)
	return c
}

// ModelID reports the model named by the peer's most recent successful response,
// or the configured model until the peer has answered.
func (c *Client) ModelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reported != "" {
		return c.reported
	}
	return c.modelID
}

// Done is closed once the response stream has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the request stream if it is closable. The peer is expected to
// finish its in-flight responses and close the response stream.
func (c *Client) Close() error {
	if closer, ok := c.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// EmbedText embeds a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	rep, err := c.call(ctx, Single(text))
	if err != nil {
		return nil, err
	}
	if rep.single == nil {
		return nil, fmt.Errorf("rpc: expected single response, got %d items", len(rep.batch))
	}
	if err := rep.single.Err(); err != nil {
		return nil, err
	}
	return rep.single.Embedding, nil
}

// EmbedTexts embeds texts in one batch request. Items the peer failed to embed
// come back as nil vectors; a failure of the whole batch is returned as an error.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	rep, err := c.call(ctx, Batch(texts))
	if err != nil {
		return nil, err
	}
	if rep.single != nil {
		if err := rep.single.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("rpc: expected %d responses, got a single one", len(texts))
	}
	if len(rep.batch) != len(texts) {
		return nil, fmt.Errorf("rpc: expected %d responses, got %d", len(texts), len(rep.batch))
	}
	out := make([][]float32, len(texts))
	for i, r := range rep.batch {
		if err := r.Err(); err != nil {
			c.logf("item %d: %v", i, err)
			continue
		}
		out[i] = r.Embedding
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, texts Texts) (reply, error) {
	id := uuid.NewString()
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reply{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	data, err := json.Marshal(Request{ID: id, Text: texts})
	if err != nil {
		return reply{}, fmt.Errorf("encode request: %w", err)
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	_, err = c.w.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		return reply{}, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case rep, ok := <-ch:
		if !ok {
			return reply{}, ErrClosed
		}
		return rep, nil
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop(r io.Reader) {
	defer c.shutdown()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var (
			id  string
			rep reply
		)
		if line[0] == '[' {
			if err := json.Unmarshal(line, &rep.batch); err != nil {
				c.logf("malformed batch response: %v", err)
				continue
			}
			if len(rep.batch) == 0 {
				c.logf("empty batch response")
				continue
			}
			id = rep.batch[0].ID
		} else {
			var resp Response
			if err := json.Unmarshal(line, &resp); err != nil {
				c.logf("malformed response: %v", err)
				continue
			}
			rep.single = &resp
			id = resp.ID
		}
		c.deliver(id, rep)
	}
	if err := scanner.Err(); err != nil {
		c.logf("read responses: %v", err)
	}
}

func (c *Client) deliver(id string, rep reply) {
	c.mu.Lock()
	if model := rep.model(); model != "" {
		c.reported = model
	}
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		c.logf("response for unknown request %q", id)
		return
	}
	ch <- rep
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.done)
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
