package gemini

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultModel          = "gemini-2.5-flash"
	DefaultEmbeddingModel = "text-embedding-004"
)

// ClientConfig is the static part of every client the factory builds.
type ClientConfig struct {
	Model          string
	EmbeddingModel string
	VertexAI       bool
	Version        string
}

// UserAgent is the header sent with every request.
func UserAgent(version string) string {
	if version == "" {
		version = runtime.Version()
	}
	return fmt.Sprintf("GeminiRotator/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
}

// NewGenAIFactory returns a Factory creating a fresh genai client per call.
func NewGenAIFactory(cfg ClientConfig) Factory {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	ua := UserAgent(cfg.Version)

	return func(ctx context.Context, apiKey string) (ContentGenerator, error) {
		if cfg.VertexAI {
			return nil, ErrVertexUnsupported
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithUserAgent(ua))
		if err != nil {
			return nil, err
		}
		return &genaiGenerator{client: client, cfg: cfg}, nil
	}
}

type genaiGenerator struct {
	client *genai.Client
	cfg    ClientConfig
}

func (g *genaiGenerator) Close() error {
	return g.client.Close()
}

func (g *genaiGenerator) model(name string) *genai.GenerativeModel {
	if name == "" {
		name = g.cfg.Model
	}
	return g.client.GenerativeModel(name)
}

func (g *genaiGenerator) chat(req *GenerateRequest) (*genai.ChatSession, []genai.Part, error) {
	if req == nil || len(req.Contents) == 0 {
		return nil, nil, ErrEmptyRequest
	}
	model := g.model(req.Model)
	model.SystemInstruction = req.SystemInstruction
	model.GenerationConfig = req.Config

	cs := model.StartChat()
	if len(req.Contents) > 1 {
		cs.History = req.Contents[0 : len(req.Contents)-1]
	}
	return cs, req.Contents[len(req.Contents)-1].Parts, nil
}

func (g *genaiGenerator) GenerateContent(ctx context.Context, req *GenerateRequest, promptID string) (*genai.GenerateContentResponse, error) {
	cs, parts, err := g.chat(req)
	if err != nil {
		return nil, err
	}
	return cs.SendMessage(ctx, parts...)
}

func (g *genaiGenerator) GenerateContentStream(ctx context.Context, req *GenerateRequest, promptID string) (ResponseStream, error) {
	cs, parts, err := g.chat(req)
	if err != nil {
		return nil, err
	}
	return iterStream{cs.SendMessageStream(ctx, parts...)}, nil
}

func (g *genaiGenerator) CountTokens(ctx context.Context, req *CountTokensRequest) (*genai.CountTokensResponse, error) {
	if req == nil || len(req.Contents) == 0 {
		return nil, ErrEmptyRequest
	}
	var parts []genai.Part
	for _, c := range req.Contents {
		parts = append(parts, c.Parts...)
	}
	return g.model(req.Model).CountTokens(ctx, parts...)
}

func (g *genaiGenerator) EmbedContent(ctx context.Context, req *EmbedRequest) (*genai.EmbedContentResponse, error) {
	if req == nil || req.Content == nil || len(req.Content.Parts) == 0 {
		return nil, ErrEmptyRequest
	}
	name := req.Model
	if name == "" {
		name = g.cfg.EmbeddingModel
	}
	em := g.client.EmbeddingModel(name)
	em.TaskType = req.TaskType
	return em.EmbedContent(ctx, req.Content.Parts...)
}

type iterStream struct {
	it *genai.GenerateContentResponseIterator
}

func (s iterStream) Next() (*genai.GenerateContentResponse, error) {
	return s.it.Next()
}

func (s iterStream) Close() error {
	return nil
}
