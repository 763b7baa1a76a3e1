// Package rpc carries embedding requests over a newline-delimited JSON stream.
// Each request carries an id that is echoed in its response, so one stream can
// multiplex many concurrent calls answered in any order.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// maxFrameSize bounds a single JSON line; a batch of 768-dim vectors is well below it.
const maxFrameSize = 16 << 20

// ErrClosed is returned for calls pending or issued after the stream ended.
var ErrClosed = errors.New("rpc: stream closed")

// Texts is the "text" field of a request: either one string or an array of strings.
type Texts struct {
	Values []string
	Batch  bool
}

// Single builds a one-text request payload.
func Single(text string) Texts {
	return Texts{Values: []string{text}}
}

// Batch builds a multi-text request payload.
func Batch(texts []string) Texts {
	return Texts{Values: texts, Batch: true}
}

func (t Texts) MarshalJSON() ([]byte, error) {
	if t.Batch {
		if t.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(t.Values)
	}
	if len(t.Values) != 1 {
		return nil, fmt.Errorf("single request needs exactly one text, got %d", len(t.Values))
	}
	return json.Marshal(t.Values[0])
}

func (t *Texts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*t = Texts{Values: values, Batch: true}
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*t = Single(value)
	return nil
}

// Request asks for embeddings of one or more texts.
type Request struct {
	ID   string `json:"id"`
	Text Texts  `json:"text"`
}

// Response answers one text. A batch request is answered by a JSON array of
// responses in input order, each carrying the request id.
type Response struct {
	Success    bool      `json:"success"`
	ID         string    `json:"id"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	// Model names the model that produced Embedding.
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
}

func success(id, model string, vec []float32) Response {
	return Response{Success: true, ID: id, Embedding: vec, Dimensions: len(vec), Model: model}
}

func failure(id string, err error) Response {
	return Response{Success: false, ID: id, Error: err.Error()}
}

// Err converts a failed response into an error.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return errors.New("rpc: request failed")
	}
	return fmt.Errorf("rpc: %s", r.Error)
}
