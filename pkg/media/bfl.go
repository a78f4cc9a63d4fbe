package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBFLBaseURL = "https://api.bfl.ai/v1"

// BFLKontext edits images with Black Forest Labs' flux-kontext-pro, which
// accepts a job and is then polled until the result is ready.
type BFLKontext struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxWait      time.Duration
	Client       *http.Client
	Logger       *zap.Logger
}

func NewBFLKontext(apiKey string, logger *zap.Logger) *BFLKontext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BFLKontext{
		APIKey:       apiKey,
		BaseURL:      DefaultBFLBaseURL,
		PollInterval: 10 * time.Second,
		MaxWait:      10 * time.Minute,
		Logger:       logger.Named("bfl"),
	}
}

type bflSubmitResponse struct {
	ID     string   `json:"id"`
	Images []string `json:"images"`
}

type bflResult struct {
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

func (b *BFLKontext) Edit(ctx context.Context, prompt string, src Image) (Image, error) {
	if b.APIKey == "" {
		return Image{}, fmt.Errorf("bfl api key is required")
	}
	client := httpClient(b.Client, 2*time.Minute)

	payload, err := json.Marshal(map[string]any{
		"prompt":      prompt,
		"input_image": base64.StdEncoding.EncodeToString(src.Data),
	})
	if err != nil {
		return Image{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(b.BaseURL, "/")+"/flux-kontext-pro", bytes.NewReader(payload))
	if err != nil {
		return Image{}, err
	}
	b.headers(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("submit flux edit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Image{}, fmt.Errorf("submit flux edit: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var submitted bflSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return Image{}, fmt.Errorf("decode flux submit response: %w", err)
	}

	if len(submitted.Images) > 0 {
		data, err := base64.StdEncoding.DecodeString(submitted.Images[0])
		if err != nil {
			return Image{}, fmt.Errorf("decode edited image: %w", err)
		}
		return Image{Data: data, MIME: src.MIME, Caption: "Edited image for prompt: " + prompt}, nil
	}
	if submitted.ID == "" {
		return Image{}, fmt.Errorf("flux edit: response has neither images nor job id")
	}
	b.Logger.Info("flux edit submitted", zap.String("job", submitted.ID))
	return b.poll(ctx, client, submitted.ID, prompt)
}

func (b *BFLKontext) poll(ctx context.Context, client *http.Client, id, prompt string) (Image, error) {
	maxWait := b.MaxWait
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	interval := b.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := b.fetchResult(ctx, client, id)
		if err != nil {
			b.Logger.Warn("flux poll failed", zap.String("job", id), zap.Error(err))
		} else {
			switch res.Status {
			case "Ready":
				if res.Result.Sample == "" {
					return Image{}, fmt.Errorf("flux job %s ready without sample", id)
				}
				data, mime, err := download(ctx, client, res.Result.Sample)
				if err != nil {
					return Image{}, err
				}
				return Image{Data: data, MIME: mime, Caption: "Edited image for prompt: " + prompt}, nil
			case "Pending":
			default:
				return Image{}, fmt.Errorf("flux job %s failed with status: %s", id, res.Status)
			}
		}

		select {
		case <-ctx.Done():
			return Image{}, fmt.Errorf("flux job %s did not complete within %s: %w", id, maxWait, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *BFLKontext) fetchResult(ctx context.Context, client *http.Client, id string) (bflResult, error) {
	endpoint := strings.TrimRight(b.BaseURL, "/") + "/get_result?id=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return bflResult{}, err
	}
	b.headers(req)
	resp, err := client.Do(req)
	if err != nil {
		return bflResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return bflResult{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var res bflResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return bflResult{}, err
	}
	return res, nil
}

func (b *BFLKontext) headers(req *http.Request) {
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-key", b.APIKey)
}
