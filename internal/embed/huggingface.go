package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const huggingFaceInferenceURL = "https://router.huggingface.co/hf-inference"

// HuggingFaceProvider calls the feature-extraction pipeline of the Hugging
// Face inference API. Sentence-transformers models return one pooled vector
// per input.
type HuggingFaceProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dims       *dims
	httpClient *http.Client
}

func NewHuggingFace(opts Options) *HuggingFaceProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = huggingFaceInferenceURL
	}
	return &HuggingFaceProvider{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		dims:       newDims(opts.Model, opts.Dimensions),
		httpClient: httpClient(opts.Timeout),
	}
}

type featureExtractionRequest struct {
	Inputs  []string        `json:"inputs"`
	Options map[string]bool `json:"options,omitempty"`
}

func (p *HuggingFaceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *HuggingFaceProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(featureExtractionRequest{
		Inputs:  texts,
		Options: map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/pipeline/feature-extraction", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface feature-extraction: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var vecs [][]float32
	if err := json.Unmarshal(respBody, &vecs); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("huggingface returned %d vectors for %d inputs", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, ErrEmptyEmbedding
		}
	}
	p.dims.learn(vecs[0])
	return vecs, nil
}

func (p *HuggingFaceProvider) Dimensions() int   { return p.dims.get() }
func (p *HuggingFaceProvider) ModelName() string { return p.model }
