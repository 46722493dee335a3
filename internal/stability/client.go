// Package stability is the thin HTTP adapter for the Stability AI
// stable-image endpoints used by the pipeline: sd3 image-to-image for
// the outline stage and control/structure for the later stages. Remote
// failures are mapped onto the domain error taxonomy; the remote
// service is the only source of randomness via the seed header.
package stability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"babygen/internal/domain"
)

const (
	defaultBaseURL = "https://api.stability.ai"

	generatePath    = "/v2beta/stable-image/generate/sd3"
	structurePath   = "/v2beta/stable-image/control/structure"
	listEnginesPath = "/v1/engines/list"

	model        = "sd3.5-large"
	outputFormat = "png"

	// Keys shorter than this are rejected before any network call.
	minKeyLength = 20
)

type Options struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	GenerateTimeout  time.Duration // image-to-image, default 60s
	StructureTimeout time.Duration // structure control, default 90s
	KeyCheckTimeout  time.Duration // engines/list, default 10s
}

type Client struct {
	httpClient       *http.Client
	baseURL          string
	key              string
	generateTimeout  time.Duration
	structureTimeout time.Duration
	keyCheckTimeout  time.Duration
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	c := &Client{
		httpClient:       client,
		baseURL:          base,
		key:              strings.TrimSpace(opts.APIKey),
		generateTimeout:  opts.GenerateTimeout,
		structureTimeout: opts.StructureTimeout,
		keyCheckTimeout:  opts.KeyCheckTimeout,
	}
	if c.generateTimeout <= 0 {
		c.generateTimeout = 60 * time.Second
	}
	if c.structureTimeout <= 0 {
		c.structureTimeout = 90 * time.Second
	}
	if c.keyCheckTimeout <= 0 {
		c.keyCheckTimeout = 10 * time.Second
	}
	return c
}

// ImageToImageRequest drives the sd3 image-to-image endpoint.
type ImageToImageRequest struct {
	Image          []byte
	Prompt         string
	NegativePrompt string
	Steps          int
	CFGScale       float64
	Strength       float64
}

// StructureRequest drives the control/structure endpoint.
type StructureRequest struct {
	Image           []byte
	Prompt          string
	NegativePrompt  string
	ControlStrength float64
}

// Result is a successful generation: the binary image and, for
// image-to-image, the seed reported by the service.
type Result struct {
	Image []byte
	Seed  string
}

// GenerateFromImage submits an image-to-image generation. The input is
// downscaled to the API's preferred 1024px bound before upload.
func (c *Client) GenerateFromImage(ctx context.Context, req ImageToImageRequest) (*Result, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	image, err := FitForUpload(req.Image)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}
	fields := map[string]string{
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"mode":            "image-to-image",
		"model":           model,
		"strength":        formatFloat(req.Strength),
		"cfg_scale":       formatFloat(req.CFGScale),
		"output_format":   outputFormat,
	}
	if req.Steps > 0 {
		fields["steps"] = strconv.Itoa(req.Steps)
	}
	return c.post(ctx, generatePath, image, fields, c.generateTimeout)
}

// GenerateWithStructure submits a structure-control generation. The
// endpoint does not report a seed; Result.Seed stays empty.
func (c *Client) GenerateWithStructure(ctx context.Context, req StructureRequest) (*Result, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"prompt":           req.Prompt,
		"control_strength": formatFloat(req.ControlStrength),
		"output_format":    outputFormat,
	}
	if strings.TrimSpace(req.NegativePrompt) != "" {
		fields["negative_prompt"] = req.NegativePrompt
	}
	res, err := c.post(ctx, structurePath, req.Image, fields, c.structureTimeout)
	if err != nil {
		return nil, err
	}
	res.Seed = ""
	return res, nil
}

// ValidateKey checks the credential against the capabilities listing
// endpoint. Keys failing the minimum length check are rejected without
// touching the network.
func (c *Client) ValidateKey(ctx context.Context) error {
	if len(c.key) < minKeyLength {
		if c.key == "" {
			return domain.ErrMissingCredential
		}
		return domain.ErrInvalidCredential
	}
	ctx, cancel := context.WithTimeout(ctx, c.keyCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listEnginesPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.ErrInvalidCredential
	}
	return nil
}

func (c *Client) requireKey() error {
	if c.key == "" {
		return domain.ErrMissingCredential
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, image []byte, fields map[string]string, timeout time.Duration) (*Result, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapTransportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.RemoteError{Status: resp.StatusCode, Body: truncate(string(payload), 500)}
	}
	return &Result{Image: payload, Seed: resp.Header.Get("seed")}, nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrRemoteTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrRemoteTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrRemoteGeneric, err)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
