package gemini

import (
	"context"
	"io"

	"github.com/google/generative-ai-go/genai"
)

// GenerateRequest describes one generation call. The last entry of Contents
// is the message being sent; earlier entries are the conversation history.
type GenerateRequest struct {
	Model             string
	Contents          []*genai.Content
	SystemInstruction *genai.Content
	Config            genai.GenerationConfig
}

type CountTokensRequest struct {
	Model    string
	Contents []*genai.Content
}

type EmbedRequest struct {
	Model    string
	Content  *genai.Content
	TaskType genai.TaskType
}

// ResponseStream yields generated chunks. Next returns iterator.Done once the
// stream is exhausted.
type ResponseStream interface {
	Next() (*genai.GenerateContentResponse, error)
	Close() error
}

// ContentGenerator is the set of operations offered by a Gemini client.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req *GenerateRequest, promptID string) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, req *GenerateRequest, promptID string) (ResponseStream, error)
	CountTokens(ctx context.Context, req *CountTokensRequest) (*genai.CountTokensResponse, error)
	EmbedContent(ctx context.Context, req *EmbedRequest) (*genai.EmbedContentResponse, error)
}

// Factory builds a ContentGenerator bound to apiKey. Handles that also
// implement io.Closer are closed once their attempt is over.
type Factory func(ctx context.Context, apiKey string) (ContentGenerator, error)

func release(g ContentGenerator) {
	if c, ok := g.(io.Closer); ok {
		_ = c.Close()
	}
}
