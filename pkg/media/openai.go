package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultA4FBaseURL = "https://api.a4f.co/v1"
	DefaultFluxModel  = "provider-1/FLUX.1.1-pro"
	DefaultDalleModel = "provider-3/dall-e-3"
)

// OpenAIImages uses the OpenAI images API, which the A4F aggregator also
// serves for Flux and DALL-E models.
type OpenAIImages struct {
	client *openai.Client
	model  string
	http   *http.Client
}

func NewOpenAIImages(apiKey, baseURL, model string) *OpenAIImages {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIImages{client: openai.NewClientWithConfig(cfg), model: model, http: &http.Client{Timeout: 60 * time.Second}}
}

func (o *OpenAIImages) Generate(ctx context.Context, prompt string) (Image, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return Image{}, fmt.Errorf("%s: %w", o.model, err)
	}
	if len(resp.Data) == 0 {
		return Image{}, ErrNoImage
	}
	item := resp.Data[0]
	caption := item.RevisedPrompt
	if caption == "" {
		caption = "Generated image successfully for prompt: " + prompt
	}

	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return Image{}, fmt.Errorf("decode image: %w", err)
		}
		return Image{Data: data, MIME: "image/png", Caption: caption}, nil
	case item.URL != "":
		data, mime, err := download(ctx, o.http, item.URL)
		if err != nil {
			return Image{}, err
		}
		return Image{Data: data, MIME: mime, Caption: caption}, nil
	default:
		return Image{}, errors.New("no valid image data found in response (missing b64_json or url)")
	}
}
