package action

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// NoticeEmbellisher optionally rewrites a rendered passive notice (§4.8)
// before it is whispered, in a GM-selected flavor. Never on the required
// path of any invariant: a failing or absent embellisher must never block
// a notice from going out.
type NoticeEmbellisher interface {
	Embellish(ctx context.Context, rendered string, style string) (string, error)
}

// TemplateEmbellisher is the default, always-on embellisher: it returns the
// rendered text unchanged. Matches §4.8's placeholder-substitution notices
// verbatim when no richer rewrite is configured.
type TemplateEmbellisher struct{}

func (TemplateEmbellisher) Embellish(ctx context.Context, rendered string, style string) (string, error) {
	return rendered, nil
}

// OpenAIEmbellisher rewrites a rendered notice's text via a chat completion,
// gated by an explicit API key and never on the required path (§8): any
// error here should be recovered by falling back to the plain rendering,
// never propagated as a failed detection.
type OpenAIEmbellisher struct {
	client *openai.Client
	Model  string
}

// NewOpenAIEmbellisher builds an embellisher against the given API key.
// Model defaults to "gpt-4o-mini" if empty.
func NewOpenAIEmbellisher(apiKey, model string) *OpenAIEmbellisher {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEmbellisher{client: openai.NewClient(apiKey), Model: model}
}

func (e *OpenAIEmbellisher) Embellish(ctx context.Context, rendered string, style string) (string, error) {
	prompt := fmt.Sprintf("Rewrite this game-master notice in a %s tone, keep it short, preserve every name and number verbatim:\n\n%s", style, rendered)
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("embellish notice: %w", err)
	}
	if len(resp.Choices) == 0 {
		return rendered, nil
	}
	return resp.Choices[0].Message.Content, nil
}

var _ NoticeEmbellisher = TemplateEmbellisher{}
var _ NoticeEmbellisher = (*OpenAIEmbellisher)(nil)
