package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"yashubustudio/labelmatch/labelmatch"
)

// Server answers embedding requests using a Provider.
type Server struct {
	provider *labelmatch.Provider
	workers  int
	logger   *log.Logger
}

// NewServer returns a server that handles up to workers requests concurrently.
func NewServer(provider *labelmatch.Provider, workers int, logger *log.Logger) *Server {
	if workers <= 0 {
		workers = 1
	}
	return &Server{provider: provider, workers: workers, logger: logger}
}

// Serve reads requests from r until EOF and writes one response line per request to w.
// Responses are written as soon as they are ready, so their order may differ from the requests.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var writeMu sync.Mutex
	enc := json.NewEncoder(w)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		frame := append([]byte(nil), line...)
		g.Go(func() error {
			reply := s.handle(gctx, frame)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := enc.Encode(reply); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			return nil
		})
	}
	werr := g.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return ctx.Err()
}

func (s *Server) handle(ctx context.Context, frame []byte) any {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(frame, &head)
		s.logf("malformed request: %v", err)
		return failure(head.ID, fmt.Errorf("malformed request: %w", err))
	}
	if !req.Text.Batch {
		if len(req.Text.Values) != 1 {
			return failure(req.ID, errors.New("missing text"))
		}
		vec, err := s.provider.EmbedOne(ctx, req.Text.Values[0])
		if err != nil {
			s.logf("embed %s: %v", req.ID, err)
			return failure(req.ID, err)
		}
		return success(req.ID, s.modelID(ctx), vec)
	}
	if len(req.Text.Values) == 0 {
		return failure(req.ID, errors.New("empty batch"))
	}
	results, err := s.provider.Embed(ctx, req.Text.Values)
	if err != nil {
		s.logf("embed batch %s: %v", req.ID, err)
		return failure(req.ID, err)
	}
	model := s.modelID(ctx)
	out := make([]Response, len(results))
	for i, res := range results {
		if res.Err != nil {
			out[i] = failure(req.ID, res.Err)
			continue
		}
		out[i] = success(req.ID, model, res.Vector)
	}
	return out
}

func (s *Server) modelID(ctx context.Context) string {
	model, err := s.provider.ModelID(ctx)
	if err != nil {
		return ""
	}
	return model
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
