package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = openai.ChatModelGPT4oMini

type chatCompletionsAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient completes prompts with the OpenAI chat completions API.
type OpenAIClient struct {
	chat  chatCompletionsAPI
	model openai.ChatModel
}

// NewOpenAIClient builds a client from an API key. Extra options (base URL,
// retries) are passed through to the SDK.
func NewOpenAIClient(apiKey, model string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("reviews: openai api key is required")
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return newOpenAIClient(&client.Chat.Completions, model), nil
}

func newOpenAIClient(chat chatCompletionsAPI, model string) *OpenAIClient {
	if chat == nil {
		panic("reviews: openai chat client cannot be nil")
	}
	m := openai.ChatModel(strings.TrimSpace(model))
	if m == "" {
		m = defaultOpenAIModel
	}
	return &OpenAIClient{chat: chat, model: m}
}

func (c *OpenAIClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.System)+len(req.Messages))
	for _, s := range req.System {
		if strings.TrimSpace(s) != "" {
			messages = append(messages, openai.SystemMessage(s))
		}
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			return LLMResponse{}, fmt.Errorf("reviews: unsupported role %q", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{Model: c.model, Messages: messages}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature >= 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("reviews: openai completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("reviews: openai returned no choices")
	}
	return LLMResponse{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		StopReason: resp.Choices[0].FinishReason,
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
		},
	}, nil
}
