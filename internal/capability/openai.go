package capability

import (
	"context"
	"errors"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pageforge/pageforge/pkg/schema"
)

// OpenAIClient implements TextGenerator and ImageGenerator using the official
// openai-go SDK (chat completions and the images API).
type OpenAIClient struct {
	model      string
	imageModel string
	opts       []option.RequestOption
}

// NewOpenAIClient creates a client for the given default models.
func NewOpenAIClient(apiKey, model, imageModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, schema.NewError(schema.ErrCodeConfig, "openai api key missing")
	}
	if model == "" {
		model = "gpt-4o"
	}
	if imageModel == "" {
		imageModel = "dall-e-3"
	}
	return &OpenAIClient{
		model:      model,
		imageModel: imageModel,
		opts:       []option.RequestOption{option.WithAPIKey(apiKey)},
	}, nil
}

// Complete runs a chat completion and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, cfg GenConfig) (string, error) {
	client := openai.NewClient(c.opts...)

	// Request-scoped override beats the stage config, which beats the
	// client default.
	model := ModelFromContext(ctx)
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		model = c.model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if cfg.System != "" {
		msgs = append(msgs, openai.SystemMessage(cfg.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if cfg.Temperature > 0 {
		params.Temperature = openai.Float(cfg.Temperature)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIErr(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeValidation, "openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Generate produces one image for the prompt and returns its URL.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(c.opts...)

	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  openai.ImageModel(c.imageModel),
		Prompt: prompt,
		N:      openai.Int(1),
	})
	if err != nil {
		return "", classifyOpenAIErr(err, "image generation")
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "openai: no image returned")
	}
	return resp.Data[0].URL, nil
}

// classifyOpenAIErr wraps an SDK error with the code the retry policy needs.
func classifyOpenAIErr(err error, op string) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return schema.NewErrorf(ClassifyStatus(apiErr.StatusCode), "openai %s failed: %s", op, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"status": apiErr.StatusCode})
	}
	// Network-level failures carry no status; let the classifier treat them
	// as transient.
	return schema.NewErrorf(schema.ErrCodeUpstream, "openai %s failed: %s", op, err.Error()).WithCause(err)
}
