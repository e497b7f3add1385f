package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/digkill/veocreator/internal/config"
	"github.com/digkill/veocreator/internal/models"
)

// Archiver stores inline video bytes and returns a public URL.
type Archiver interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Client struct {
	apiKey       string
	baseURL      string
	fastModel    string
	qualityModel string
	temperature  float64
	maxTokens    int
	httpClient   *http.Client
	archiver     Archiver
	log          *slog.Logger
}

// NewClient builds a client for the generateContent endpoint. The archiver may be
// nil, in which case responses carrying only inline video data are rejected.
func NewClient(cfg config.Config, archiver Archiver, log *slog.Logger) *Client {
	return &Client{
		apiKey:       cfg.GeminiAPIKey,
		baseURL:      strings.TrimRight(cfg.GeminiAPIURL, "/"),
		fastModel:    cfg.GeminiFastModel,
		qualityModel: cfg.GeminiQualityModel,
		temperature:  cfg.GeminiTemperature,
		maxTokens:    cfg.GeminiMaxTokens,
		// Deadlines come from the caller's context.
		httpClient: &http.Client{},
		archiver:   archiver,
		log:        log,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generation_config"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	OutputVideo     bool    `json:"output_video"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) Dispatch(ctx context.Context, prompt string, tier models.ModelTier) (*Video, error) {
	endpoint, err := c.endpoint(tier)
	if err != nil {
		return nil, permanent(err)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
			OutputVideo:     true,
		},
	})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.log != nil {
		c.log.Info("dispatching generation", "tier", tier, "model", c.model(tier))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transient(fmt.Errorf("post gemini: %w", err))
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transient(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("gemini request failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return nil, classifyStatus(resp.StatusCode, rawBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, permanent(fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody)))
	}
	if parsed.Error != nil {
		return nil, classifyStatus(parsed.Error.Code, rawBody)
	}

	videoURL, err := c.extractVideo(ctx, &parsed)
	if err != nil {
		return nil, err
	}

	return &Video{
		URL:             videoURL,
		DurationSeconds: DefaultDuration(tier),
		Raw:             json.RawMessage(rawBody),
	}, nil
}

// extractVideo returns the first video in the response, archiving inline bytes.
func (c *Client) extractVideo(ctx context.Context, resp *generateResponse) (string, error) {
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.FileData != nil && p.FileData.FileURI != "" {
				return p.FileData.FileURI, nil
			}
		}
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if !strings.HasPrefix(strings.ToLower(p.InlineData.MimeType), "video/") {
				continue
			}
			if c.archiver == nil {
				return "", permanent(errors.New("inline video returned but no archive is configured"))
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return "", permanent(fmt.Errorf("decode inline video: %w", err))
			}
			u, err := c.archiver.Upload(ctx, data, p.InlineData.MimeType)
			if err != nil {
				return "", transient(fmt.Errorf("archive inline video: %w", err))
			}
			return u, nil
		}
	}
	return "", permanent(errors.New("response contains no video"))
}

func (c *Client) endpoint(tier models.ModelTier) (string, error) {
	base, err := url.Parse(c.baseURL + "/" + c.model(tier) + ":generateContent")
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := base.Query()
	q.Set("key", c.apiKey)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (c *Client) model(tier models.ModelTier) string {
	if tier == models.TierQuality {
		return c.qualityModel
	}
	return c.fastModel
}

func classifyStatus(status int, body []byte) *DispatchError {
	err := fmt.Errorf("gemini error: status=%d body=%s", status, truncateBody(body))
	if status == http.StatusTooManyRequests || status >= 500 || status == http.StatusRequestTimeout {
		return &DispatchError{Kind: Transient, StatusCode: status, Err: err}
	}
	return &DispatchError{Kind: Permanent, StatusCode: status, Err: err}
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
