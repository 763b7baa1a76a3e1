// Package emb provides sentence-embedding backends: a local ONNX Runtime encoder
// and a Gemini API client. Every backend returns L2-normalized vectors.
package emb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Pooling strategies for token-level model outputs.
const (
	PoolingMean = "mean"
	PoolingCLS  = "cls"
)

// Config describes an ONNX sentence encoder and its tokenizer.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	ModelID       string
	Pooling       string
}

// Encoder runs a transformer encoder through ONNX Runtime.
type Encoder struct {
	mu sync.Mutex

	cfg        Config
	tk         *tokenizer.Tokenizer
	session    *ort.DynamicAdvancedSession
	inputNames []string
	ownsEnv    bool
}

// Init loads the tokenizer and model. It must be called before any other method.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" {
		return errors.New("model path is required")
	}
	if cfg.TokenizerPath == "" {
		return errors.New("tokenizer path is required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}
	if cfg.ModelID == "" {
		cfg.ModelID = strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	}
	if cfg.Pooling == "" {
		cfg.Pooling = PoolingMean
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	if cfg.OrtDLL != "" {
		ort.SetSharedLibraryPath(cfg.OrtDLL)
	}
	ownsEnv := false
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("init onnxruntime: %w", err)
		}
		ownsEnv = true
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		e.releaseEnv(ownsEnv)
		return fmt.Errorf("inspect model: %w", err)
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			inputNames = append(inputNames, in.Name)
		default:
			e.releaseEnv(ownsEnv)
			return fmt.Errorf("unsupported model input %q", in.Name)
		}
	}
	if len(outputs) == 0 {
		e.releaseEnv(ownsEnv)
		return errors.New("model has no outputs")
	}
	outputName := outputs[0].Name
	for _, out := range outputs {
		if out.Name == "sentence_embedding" {
			outputName = out.Name
			break
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		e.releaseEnv(ownsEnv)
		return fmt.Errorf("create session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.tk = tk
	e.session = session
	e.inputNames = inputNames
	e.ownsEnv = ownsEnv
	return nil
}

// ModelID identifies the loaded model.
func (e *Encoder) ModelID() string {
	return e.cfg.ModelID
}

// Close releases the session and, if Init created it, the runtime environment.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.session != nil {
		errs = append(errs, e.session.Destroy())
		e.session = nil
	}
	if e.ownsEnv {
		errs = append(errs, ort.DestroyEnvironment())
		e.ownsEnv = false
	}
	return errors.Join(errs...)
}

// Encode embeds a single text.
func (e *Encoder) Encode(text string) ([]float32, error) {
	vecs, err := e.EncodeBatch([]string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedText embeds a single text.
func (e *Encoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.Encode(text)
}

// EmbedTexts embeds texts as one padded batch.
func (e *Encoder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.EncodeBatch(texts)
}

type encoded struct {
	ids, mask, types []int
}

// EncodeBatch tokenizes, pads and runs texts through the model in one call.
func (e *Encoder) EncodeBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("encoder is not initialized")
	}

	encs := make([]encoded, len(texts))
	seqLen := 0
	for i, text := range texts {
		en, err := e.tk.EncodeSingle(text, true)
		if err != nil {
			return nil, fmt.Errorf("tokenize %q: %w", text, err)
		}
		encs[i] = truncate(encoded{ids: en.Ids, mask: en.AttentionMask, types: en.TypeIds}, e.cfg.MaxSeqLen)
		seqLen = max(seqLen, len(encs[i].ids))
	}
	if seqLen == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}

	batch := len(texts)
	ids := make([]int64, batch*seqLen)
	mask := make([]int64, batch*seqLen)
	types := make([]int64, batch*seqLen)
	for i, en := range encs {
		row := i * seqLen
		for j := range en.ids {
			ids[row+j] = int64(en.ids[j])
			mask[row+j] = 1
			if j < len(en.mask) {
				mask[row+j] = int64(en.mask[j])
			}
			if j < len(en.types) {
				types[row+j] = int64(en.types[j])
			}
		}
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))
	inputs := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range e.inputNames {
		data := ids
		switch name {
		case "attention_mask":
			data = mask
		case "token_type_ids":
			data = types
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return pool(out.GetShape(), out.GetData(), mask, batch, seqLen, e.cfg.Pooling)
}

func truncate(en encoded, maxLen int) encoded {
	if len(en.ids) <= maxLen {
		return en
	}
	cut := func(v []int) []int {
		if len(v) <= maxLen {
			return v
		}
		// keep the trailing separator token
		out := append([]int(nil), v[:maxLen-1]...)
		return append(out, v[len(v)-1])
	}
	return encoded{ids: cut(en.ids), mask: cut(en.mask), types: cut(en.types)}
}

func pool(shape ort.Shape, data []float32, mask []int64, batch, seqLen int, strategy string) ([][]float32, error) {
	out := make([][]float32, batch)
	switch len(shape) {
	case 2:
		hidden := int(shape[1])
		if int(shape[0]) != batch || len(data) != batch*hidden {
			return nil, fmt.Errorf("unexpected output shape %v", shape)
		}
		for b := 0; b < batch; b++ {
			vec := make([]float32, hidden)
			copy(vec, data[b*hidden:(b+1)*hidden])
			out[b] = normalize(vec)
		}
		return out, nil
	case 3:
		hidden := int(shape[2])
		if int(shape[0]) != batch || int(shape[1]) != seqLen || len(data) != batch*seqLen*hidden {
			return nil, fmt.Errorf("unexpected output shape %v", shape)
		}
		for b := 0; b < batch; b++ {
			acc := make([]float64, hidden)
			if strategy == PoolingCLS {
				base := b * seqLen * hidden
				for h := 0; h < hidden; h++ {
					acc[h] = float64(data[base+h])
				}
			} else {
				var count float64
				for t := 0; t < seqLen; t++ {
					if mask[b*seqLen+t] == 0 {
						continue
					}
					count++
					base := (b*seqLen + t) * hidden
					for h := 0; h < hidden; h++ {
						acc[h] += float64(data[base+h])
					}
				}
				if count > 0 {
					for h := range acc {
						acc[h] /= count
					}
				}
			}
			vec := make([]float32, hidden)
			for h, v := range acc {
				vec[h] = float32(v)
			}
			out[b] = normalize(vec)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected output rank %d", len(shape))
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i, v := range vec {
		vec[i] = float32(float64(v) * inv)
	}
	return vec
}

func (e *Encoder) releaseEnv(owned bool) {
	if owned {
		_ = ort.DestroyEnvironment()
	}
}
