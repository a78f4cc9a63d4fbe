package media

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultGeminiImageModel = "gemini-2.0-flash-preview-image-generation"

	generatePreamble = "Generate an image that closely adheres to the provided description, focusing on realism, accuracy and lifelike details. " +
		"Avoid fantastical or whimsical elements unless explicitly requested. Even if the prompt is vague or unconventional, always produce a coherent, realistic visual interpretation. Never skip generation.\n\nDescription: "

	editPreamble = "You are an image editor. Apply the requested change while keeping the result photorealistic: preserve lighting, shadows, textures, proportions and perspective, " +
		"and make edits blend in as if done by a professional retoucher. When the request is vague, choose the most reasonable, conservative interpretation and proceed.\n\nRequest: "
)

// GeminiImages generates and edits images with Gemini's image-output models.
type GeminiImages struct {
	client *genai.Client
	model  string
}

func NewGeminiImages(ctx context.Context, apiKey, model string) (*GeminiImages, error) {
	return newGeminiImages(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}, model)
}

func newGeminiImages(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiImages, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiImageModel
	}
	return &GeminiImages{client: client, model: model}, nil
}

func (g *GeminiImages) Generate(ctx context.Context, prompt string) (Image, error) {
	parts := []*genai.Part{genai.NewPartFromText(generatePreamble + prompt)}
	return g.call(ctx, parts)
}

func (g *GeminiImages) Edit(ctx context.Context, prompt string, src Image) (Image, error) {
	mime := src.MIME
	if mime == "" {
		mime = "image/png"
	}
	parts := []*genai.Part{
		genai.NewPartFromText(editPreamble + prompt),
		genai.NewPartFromBytes(src.Data, mime),
	}
	return g.call(ctx, parts)
}

func (g *GeminiImages) call(ctx context.Context, parts []*genai.Part) (Image, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}})
	if err != nil {
		return Image{}, fmt.Errorf("gemini image: %w", err)
	}

	var img Image
	var caption []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch {
			case part.Text != "":
				caption = append(caption, strings.TrimSpace(part.Text))
			case part.InlineData != nil && len(part.InlineData.Data) > 0 && img.Data == nil:
				img.Data = part.InlineData.Data
				img.MIME = part.InlineData.MIMEType
			}
		}
		if img.Data != nil {
			break
		}
	}
	if img.Data == nil {
		return Image{}, ErrNoImage
	}
	img.Caption = strings.Join(caption, "\n")
	return img, nil
}
