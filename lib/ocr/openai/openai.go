// Package openai implements ocr.Provider on top of any OpenAI compatible
// chat completion API that accepts image input.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/sankforever/gkcx/lib/ocr"
	"github.com/sankforever/gkcx/lib/telemetry"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("ocr/openai")

const defaultPrompt = "This image is a captcha. Reply with only the characters in the image, without spaces or any other text."

type Options struct {
	ApiKey string
	Model  string
	// BaseUrl defaults to the OpenAI API.
	BaseUrl string
	// Prompt overrides the instruction sent with the image.
	Prompt     string
	HttpClient *http.Client
}

type Client struct {
	client *goopenai.Client
	model  string
	prompt string
}

var _ ocr.Provider = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	if opts.ApiKey == "" {
		return nil, fmt.Errorf("openai ocr: api key is required")
	}
	if opts.Model == "" {
		opts.Model = goopenai.GPT4oMini
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultPrompt
	}

	config := goopenai.DefaultConfig(opts.ApiKey)
	if opts.BaseUrl != "" {
		config.BaseURL = strings.TrimRight(opts.BaseUrl, "/")
	}
	if opts.HttpClient != nil {
		config.HTTPClient = opts.HttpClient
	}

	return &Client{
		client: goopenai.NewClientWithConfig(config),
		model:  opts.Model,
		prompt: opts.Prompt,
	}, nil
}

func dataUrl(image []byte) string {
	return fmt.Sprintf(
		"data:%s;base64,%s",
		http.DetectContentType(image),
		base64.StdEncoding.EncodeToString(image),
	)
}

func (c *Client) Recognize(ctx context.Context, image []byte) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:Recognize")
	defer span.End()

	res, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   16,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role: goopenai.ChatMessageRoleUser,
				MultiContent: []goopenai.ChatMessagePart{
					{
						Type: goopenai.ChatMessagePartTypeText,
						Text: c.prompt,
					},
					{
						Type: goopenai.ChatMessagePartTypeImageURL,
						ImageURL: &goopenai.ChatMessageImageURL{
							URL:    dataUrl(image),
							Detail: goopenai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	var out []string
	for _, choice := range res.Choices {
		text := strings.TrimSpace(choice.Message.Content)
		if text != "" {
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return nil, ocr.ErrNoResult
	}
	return out, nil
}
