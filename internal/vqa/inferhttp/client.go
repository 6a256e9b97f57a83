// Package inferhttp is a vqa backend for a BLIP-style inference server
// reachable over HTTP. The server owns the weights and the device; this
// client selects the device, loads the model and relays questions.
package inferhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/vettriage/internal/vqa"
)

const (
	// DefaultModel is the checkpoint requested from the server.
	DefaultModel = "Salesforce/blip-vqa-base"

	maxErrBody = 512
	maxLength  = 20
	numBeams   = 2
)

// Client implements vqa.Backend against an inference server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

type deviceResponse struct {
	Accelerators []string `json:"accelerators"`
}

type loadRequest struct {
	Model  string `json:"model"`
	Device string `json:"device"`
	DType  string `json:"dtype"`
}

type answerRequest struct {
	Model     string `json:"model"`
	Device    string `json:"device"`
	Question  string `json:"question"`
	ImagePNG  string `json:"image_png_base64"`
	MaxLength int    `json:"max_length"`
	NumBeams  int    `json:"num_beams"`
}

type answerResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// Name implements vqa.Backend.
func (c *Client) Name() string { return "inferhttp" }

// ModelName implements vqa.ModelNamer.
func (c *Client) ModelName() string { return c.model }

// Accelerated asks the server whether it has an accelerator. Any error is
// treated as "no".
func (c *Client) Accelerated(ctx context.Context) bool {
	var out deviceResponse
	if err := c.do(ctx, http.MethodGet, "/device", nil, &out); err != nil {
		return false
	}
	return len(out.Accelerators) > 0
}

// Load asks the server to load the model on the device matching mode.
// Out-of-memory responses are reported as vqa.ErrResource.
func (c *Client) Load(ctx context.Context, mode vqa.Mode) (vqa.Model, error) {
	device, dtype := "cpu", "float32"
	if mode == vqa.ModeAccelerated {
		device, dtype = "cuda", "float16"
	}
	req := loadRequest{Model: c.model, Device: device, DType: dtype}
	if err := c.do(ctx, http.MethodPost, "/load", req, nil); err != nil {
		return nil, err
	}
	return &model{client: c, device: device}, nil
}

type model struct {
	client *Client
	device string
}

// Answer implements vqa.Model.
func (m *model) Answer(ctx context.Context, img image.Image, question string) (string, float64, error) {
	encoded, err := vqa.EncodePNGBase64(img)
	if err != nil {
		return "", 0, err
	}
	req := answerRequest{
		Model:     m.client.model,
		Device:    m.device,
		Question:  question,
		ImagePNG:  encoded,
		MaxLength: maxLength,
		NumBeams:  numBeams,
	}
	var out answerResponse
	if err := m.client.do(ctx, http.MethodPost, "/answer", req, &out); err != nil {
		return "", 0, err
	}
	return out.Answer, out.Score, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // baseURL is from trusted config
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		err := fmt.Errorf("inference server %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
		if isResourceError(resp.StatusCode, string(msg)) {
			return fmt.Errorf("%w: %w", vqa.ErrResource, err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isResourceError(status int, body string) bool {
	if status == http.StatusInsufficientStorage {
		return true
	}
	return strings.Contains(strings.ToLower(body), "out of memory")
}
