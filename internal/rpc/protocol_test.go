package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextsJSON(t *testing.T) {
	data, err := json.Marshal(Request{ID: "1", Text: Single("Email")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","text":"Email"}`, string(data))

	data, err = json.Marshal(Request{ID: "2", Text: Batch([]string{"a", "b"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2","text":["a","b"]}`, string(data))

	data, err = json.Marshal(Request{ID: "3", Text: Batch(nil)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"3","text":[]}`, string(data))

	_, err = json.Marshal(Request{ID: "4", Text: Texts{}})
	assert.Error(t, err)

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"id":"5","text":["x"]}`), &req))
	assert.Equal(t, Texts{Values: []string{"x"}, Batch: true}, req.Text)
	require.NoError(t, json.Unmarshal([]byte(`{"id":"6","text":"y"}`), &req))
	assert.Equal(t, Single("y"), req.Text)
	assert.Error(t, json.Unmarshal([]byte(`{"id":"7","text":7}`), &req))
}

func TestResponseErr(t *testing.T) {
	assert.NoError(t, success("1", "m", []float32{1}).Err())
	assert.EqualError(t, Response{ID: "1", Error: "boom"}.Err(), "rpc: boom")
	assert.EqualError(t, Response{ID: "1"}.Err(), "rpc: request failed")

	ok := success("1", "m", []float32{0, 1})
	assert.Equal(t, 2, ok.Dimensions)

	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"id":"1","embedding":[0,1],"dimensions":2,"model":"m"}`, string(data))

	data, err = json.Marshal(failure("2", assert.AnError))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"model"`)
}
