package localasr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/medscribe/medscribe-backend/internal/platform/envutil"
	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

// Client talks to a locally-run whisper-style ASR server. It is the offline
// fallback when the hosted speech provider is unavailable or over budget.
type Client interface {
	Transcribe(ctx context.Context, audio []byte, format string, language string) (string, error)
}

type client struct {
	httpClient *http.Client
	log        *logger.Logger
	baseURL    string
}

func NewClient(log *logger.Logger) Client {
	return &client{
		httpClient: &http.Client{
			Timeout: envutil.Duration("LOCAL_ASR_TIMEOUT", 5*time.Minute),
		},
		log:     log.With("client", "localasr"),
		baseURL: strings.TrimRight(envutil.String("LOCAL_ASR_URL", "http://localhost:8081"), "/"),
	}
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (c *client) Transcribe(ctx context.Context, audio []byte, format string, language string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	if err := mw.WriteField("language", language); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inference", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("local asr status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out inferenceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse local asr response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("local asr: %s", out.Error)
	}
	return strings.TrimSpace(out.Text), nil
}
