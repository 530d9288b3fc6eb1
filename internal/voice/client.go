package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiHealth           = "/health"
	apiLoadConverter    = "/v1/converter/load"
	apiExtractEmbedding = "/v1/embeddings/extract"
	apiLoadEmbedding    = "/v1/embeddings/load"
	apiSpeakers         = "/v1/speakers"
	apiSynthesize       = "/v1/synthesize"
	apiConvert          = "/v1/convert"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "voice model error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "voice model returned non-OK status: %s, body: %s"
)

// Static errors.
var (
	ErrEmptyEmbedding = errors.New("voice model returned an empty embedding")
	ErrNoSpeakers     = errors.New("voice model reported no base speakers")
	ErrAudioPathEmpty = errors.New("audio path cannot be empty")
	ErrTextEmpty      = errors.New("text cannot be empty")
)

// HTTPClient talks to the inference sidecar hosting the voice model.
// It implements Model over JSON requests and carries the HTTP timeout every call shares.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// ErrorResponse represents a structured error body returned by the sidecar.
// When a non-2xx response does not decode into it, the raw body is reported instead.
type ErrorResponse struct {
	// Detail contains a human-readable error description.
	Detail string `json:"detail"`

	// ErrorCode provides a machine-readable error classification, when the sidecar sets one.
	ErrorCode string `json:"error_code,omitempty"`
}

type extractRequest struct {
	AudioPath string `json:"audio_path"`
	VAD       bool   `json:"vad"`
}

type loadEmbeddingRequest struct {
	Path   string `json:"path"`
	Device string `json:"device"`
}

type embeddingResponse struct {
	Embedding Embedding `json:"embedding"`
}

type speakersResponse struct {
	Speakers map[string]int `json:"speakers"`
}

// NewHTTPClient creates a client for the sidecar at baseURL (e.g. "http://127.0.0.1:8000").
// A zero timeout leaves requests bounded only by their context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HealthCheck verifies that the sidecar is up.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, apiHealth, nil, nil)
	if err != nil {
		return fmt.Errorf("health check failed for voice model at %s: %w", c.baseURL, err)
	}

	return nil
}

// LoadConverter loads the tone colour converter from its config and weights.
func (c *HTTPClient) LoadConverter(ctx context.Context, spec ConverterSpec) error {
	err := c.do(ctx, http.MethodPost, apiLoadConverter, spec, nil)
	if err != nil {
		return fmt.Errorf("failed to load tone converter: %w", err)
	}

	return nil
}

// ExtractEmbedding extracts the tone embedding of a reference recording. Voice activity
// detection is disabled so short references are used whole.
func (c *HTTPClient) ExtractEmbedding(ctx context.Context, audioPath string) (Embedding, error) {
	if audioPath == "" {
		return nil, ErrAudioPathEmpty
	}

	var resp embeddingResponse

	err := c.do(ctx, http.MethodPost, apiExtractEmbedding, extractRequest{AudioPath: audioPath, VAD: false}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to extract embedding from %s: %w", audioPath, err)
	}

	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Embedding, nil
}

// LoadSpeakerEmbedding loads a precomputed base speaker embedding file.
func (c *HTTPClient) LoadSpeakerEmbedding(ctx context.Context, path, device string) (Embedding, error) {
	var resp embeddingResponse

	err := c.do(ctx, http.MethodPost, apiLoadEmbedding, loadEmbeddingRequest{Path: path, Device: device}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to load speaker embedding %s: %w", path, err)
	}

	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return resp.Embedding, nil
}

// BaseSpeakers loads the text-to-speech model for language and returns its built-in
// speaker keys mapped to speaker ids.
func (c *HTTPClient) BaseSpeakers(ctx context.Context, language, device string) (map[string]int, error) {
	query := url.Values{}
	query.Set("language", language)
	query.Set("device", device)

	var resp speakersResponse

	err := c.do(ctx, http.MethodGet, apiSpeakers+"?"+query.Encode(), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to load text-to-speech model for %s: %w", language, err)
	}

	if len(resp.Speakers) == 0 {
		return nil, fmt.Errorf("%w for language %s", ErrNoSpeakers, language)
	}

	return resp.Speakers, nil
}

// Synthesize writes base speaker audio for req.Text to req.OutputPath.
func (c *HTTPClient) Synthesize(ctx context.Context, req SynthesisRequest) error {
	if req.Text == "" {
		return ErrTextEmpty
	}

	err := c.do(ctx, http.MethodPost, apiSynthesize, req, nil)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	return nil
}

// ConvertTone re-voices req.SourcePath toward the target embedding into req.OutputPath.
func (c *HTTPClient) ConvertTone(ctx context.Context, req ConversionRequest) error {
	err := c.do(ctx, http.MethodPost, apiConvert, req, nil)
	if err != nil {
		return fmt.Errorf("failed to convert tone colour: %w", err)
	}

	return nil
}

// do sends an optional JSON body and decodes an optional JSON response.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set(headerContentType, contentTypeJSON)
	}

	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to voice model at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// parseErrorResponse decodes a structured error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
