package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

const noResponse = "No response from model."

// Client is a text oriented helper on top of a ContentGenerator.
type Client struct {
	gen ContentGenerator
}

func New(gen ContentGenerator) *Client {
	return &Client{gen: gen}
}

// GenerateContent sends history (last entry is the new prompt) and returns
// the streamed answer as one string.
func (c *Client) GenerateContent(ctx context.Context, history []*genai.Content, systemPrompt string) (string, error) {
	if len(history) == 0 {
		return "", errors.New("empty history")
	}

	req := &GenerateRequest{Contents: history}
	if systemPrompt != "" {
		req.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	stream, err := c.gen.GenerateContentStream(ctx, req, uuid.NewString())
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", err
		}
		sb.WriteString(responseText(resp))
	}

	if sb.Len() == 0 {
		return noResponse, nil
	}
	return sb.String(), nil
}

// GenerateContentWithBlob asks about an inline document or image.
func (c *Client) GenerateContentWithBlob(ctx context.Context, prompt, mimeType string, data []byte) (string, error) {
	req := &GenerateRequest{
		Contents: []*genai.Content{{
			Role: "user",
			Parts: []genai.Part{
				genai.Blob{MIMEType: mimeType, Data: data},
				genai.Text(prompt),
			},
		}},
	}

	resp, err := c.gen.GenerateContent(ctx, req, uuid.NewString())
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if text == "" {
		return noResponse, nil
	}
	return text, nil
}

func (c *Client) CountTokens(ctx context.Context, history []*genai.Content) (int, error) {
	if len(history) == 0 {
		return 0, nil
	}
	resp, err := c.gen.CountTokens(ctx, &CountTokensRequest{Contents: history})
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

// TrimHistory drops the oldest turns until the history fits into budget
// tokens. The trimmed history starts with a user turn, and the newest turn
// is always kept. A budget <= 0 disables trimming.
func (c *Client) TrimHistory(ctx context.Context, history []*genai.Content, budget int) ([]*genai.Content, error) {
	if budget <= 0 {
		return history, nil
	}
	for len(history) > 1 {
		n, err := c.CountTokens(ctx, history)
		if err != nil {
			return nil, err
		}
		if n <= budget {
			break
		}
		history = history[1:]
		for len(history) > 1 && history[0].Role != "user" {
			history = history[1:]
		}
	}
	return history, nil
}

func (c *Client) Embed(ctx context.Context, text string, taskType genai.TaskType) ([]float32, error) {
	resp, err := c.gen.EmbedContent(ctx, &EmbedRequest{
		Content:  genai.NewUserContent(genai.Text(text)),
		TaskType: taskType,
	})
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil {
		return nil, errors.New("empty embedding")
	}
	return resp.Embedding.Values, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
