package bot

import (
	"context"
	"errors"
	"gemini-rotator/internal/db"
	"gemini-rotator/internal/i18n"
	"gemini-rotator/internal/knowledge"
	"gemini-rotator/pkg/gemini"
	"path/filepath"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

type sentMessage struct {
	to   types.JID
	text string
}

type fakeMessenger struct {
	sent []sentMessage
	data []byte
}

func (m *fakeMessenger) SendMessage(_ context.Context, to types.JID, message *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	m.sent = append(m.sent, sentMessage{to: to, text: message.GetConversation()})
	return whatsmeow.SendResponse{}, nil
}

func (m *fakeMessenger) Download(context.Context, whatsmeow.DownloadableMessage) ([]byte, error) {
	return m.data, nil
}

// fakeGenerator answers every prompt with "echo: <last text>".
type fakeGenerator struct {
	err          error
	lastRequest  *gemini.GenerateRequest
	embedQueries int
}

func lastText(contents []*genai.Content) string {
	if len(contents) == 0 {
		return ""
	}
	parts := contents[len(contents)-1].Parts
	if t, ok := parts[len(parts)-1].(genai.Text); ok {
		return string(t)
	}
	return ""
}

func answer(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}},
	}}}
}

func (g *fakeGenerator) GenerateContent(_ context.Context, req *gemini.GenerateRequest, _ string) (*genai.GenerateContentResponse, error) {
	g.lastRequest = req
	if g.err != nil {
		return nil, g.err
	}
	return answer("echo: " + lastText(req.Contents)), nil
}

func (g *fakeGenerator) GenerateContentStream(_ context.Context, req *gemini.GenerateRequest, _ string) (gemini.ResponseStream, error) {
	g.lastRequest = req
	if g.err != nil {
		return nil, g.err
	}
	return &oneShot{resp: answer("echo: " + lastText(req.Contents))}, nil
}

func (g *fakeGenerator) CountTokens(_ context.Context, req *gemini.CountTokensRequest) (*genai.CountTokensResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &genai.CountTokensResponse{TotalTokens: int32(5 * len(req.Contents))}, nil
}

func (g *fakeGenerator) EmbedContent(context.Context, *gemini.EmbedRequest) (*genai.EmbedContentResponse, error) {
	g.embedQueries++
	return &genai.EmbedContentResponse{Embedding: &genai.ContentEmbedding{Values: []float32{1}}}, nil
}

type oneShot struct {
	resp *genai.GenerateContentResponse
	done bool
}

func (s *oneShot) Next() (*genai.GenerateContentResponse, error) {
	if s.done {
		return nil, iterator.Done
	}
	s.done = true
	return s.resp, nil
}

func (s *oneShot) Close() error { return nil }

func newTestHandler(t *testing.T, gen gemini.ContentGenerator) (*BotHandler, *fakeMessenger) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.InitSchema(context.Background()))

	bundle, err := i18n.NewBundle()
	require.NoError(t, err)

	m := &fakeMessenger{}
	return &BotHandler{
		Client: m,
		DB:     database,
		Bundle: bundle,
		Gemini: gemini.New(gen),
	}, m
}

const sender = "628123@s.whatsapp.net"

func TestRespond_GeminiQueryStoresHistory(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := newTestHandler(t, gen)
	en := i18n.NewLocalizer(h.Bundle, "en")

	reply := h.respond(context.Background(), sender, "hello there", en)

	assert.Equal(t, "echo: hello there", reply)
	history := h.DB.GetConversationHistory(sender)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "hello there", history[0].Message)
	assert.Equal(t, "model", history[1].Role)
	assert.Nil(t, gen.lastRequest.SystemInstruction)
}

func TestRespond_SendsPreviousTurns(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := newTestHandler(t, gen)
	en := i18n.NewLocalizer(h.Bundle, "en")

	h.respond(context.Background(), sender, "first", en)
	h.respond(context.Background(), sender, "second", en)

	require.Len(t, gen.lastRequest.Contents, 3)
	assert.Equal(t, "second", lastText(gen.lastRequest.Contents))
}

func TestRespond_TrimsHistoryToBudget(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := newTestHandler(t, gen)
	h.HistoryTokenBudget = 10
	en := i18n.NewLocalizer(h.Bundle, "en")

	h.respond(context.Background(), sender, "first", en)
	h.respond(context.Background(), sender, "second", en)

	require.Len(t, gen.lastRequest.Contents, 1)
	assert.Equal(t, "user", gen.lastRequest.Contents[0].Role)
	assert.Equal(t, "second", lastText(gen.lastRequest.Contents))
}

func TestRespond_GeminiErrorIsLocalized(t *testing.T) {
	gen := &fakeGenerator{err: &googleapi.Error{Code: 500}}
	h, _ := newTestHandler(t, gen)
	id := i18n.NewLocalizer(h.Bundle, "id")

	reply := h.respond(context.Background(), sender, "halo", id)

	assert.Equal(t, i18n.Message(id, "error_gemini", nil), reply)
	assert.Empty(t, h.DB.GetConversationHistory(sender))
}

func TestRespond_KnowledgeAddsSystemPrompt(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := newTestHandler(t, gen)
	kb, err := knowledge.Parse([]byte("knowledge: We sell coffee.\nentries:\n  - title: Hours\n    text: 8 to 22\n"))
	require.NoError(t, err)
	h.Knowledge = kb
	h.KnowledgeEnabled = true

	h.respond(context.Background(), sender, "when do you open?", i18n.NewLocalizer(h.Bundle, "en"))

	require.NotNil(t, gen.lastRequest.SystemInstruction)
	prompt := string(gen.lastRequest.SystemInstruction.Parts[0].(genai.Text))
	assert.Contains(t, prompt, "We sell coffee.")
	assert.Contains(t, prompt, "## Hours")
	assert.Equal(t, 2, gen.embedQueries)
}

func TestRespond_LangCommand(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGenerator{})
	en := i18n.NewLocalizer(h.Bundle, "en")

	reply := h.respond(context.Background(), sender, "/lang id", en)

	assert.Equal(t, "Bahasa diubah ke Bahasa Indonesia.", reply)
	assert.Equal(t, "id", h.DB.GetUserLang(sender))
}

func TestRespond_LangCommandUnknown(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGenerator{})
	en := i18n.NewLocalizer(h.Bundle, "en")

	reply := h.respond(context.Background(), sender, "/lang fr", en)

	assert.Contains(t, reply, `"fr"`)
	assert.Equal(t, "en", h.DB.GetUserLang(sender))
	assert.Empty(t, h.respond(context.Background(), sender, "/lang", en))
}

func TestRespond_ResetCommand(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGenerator{})
	en := i18n.NewLocalizer(h.Bundle, "en")
	h.DB.AddMessageToHistory(sender, "user", "hello", "")

	reply := h.respond(context.Background(), sender, "/newchat", en)

	assert.Equal(t, "Conversation history has been reset.", reply)
	assert.Empty(t, h.DB.GetConversationHistory(sender))
}

func TestRespond_TokensCommand(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGenerator{})
	en := i18n.NewLocalizer(h.Bundle, "en")
	h.DB.AddMessageToHistory(sender, "user", "hello", "")
	h.DB.AddMessageToHistory(sender, "model", "hi", "")

	reply := h.respond(context.Background(), sender, "/tokens", en)

	assert.Equal(t, "Your conversation history uses 10 tokens across 2 messages.", reply)
}

func TestAnswerMedia(t *testing.T) {
	gen := &fakeGenerator{}
	h, _ := newTestHandler(t, gen)
	en := i18n.NewLocalizer(h.Bundle, "en")

	reply := h.answerMedia(context.Background(), "", "application/pdf", []byte("%PDF"), sender, "Ann", en)

	assert.Equal(t, "echo: Please summarize this document.", reply)
	history := h.DB.GetConversationHistory(sender)
	require.Len(t, history, 2)
	assert.Equal(t, "[User sent a PDF] Please summarize this document.", history[0].Message)
	assert.Equal(t, "Ann", history[0].UserName)
}

func TestAnswerMedia_Error(t *testing.T) {
	h, _ := newTestHandler(t, &fakeGenerator{err: errors.New("network down")})
	en := i18n.NewLocalizer(h.Bundle, "en")

	reply := h.answerMedia(context.Background(), "what is this?", "image/png", []byte{1}, sender, "", en)

	assert.Equal(t, i18n.Message(en, "error_gemini", nil), reply)
}

func TestSendMessage(t *testing.T) {
	h, m := newTestHandler(t, &fakeGenerator{})
	to, err := types.ParseJID(sender)
	require.NoError(t, err)

	h.sendMessage(to, "hi")

	require.Len(t, m.sent, 1)
	assert.Equal(t, sentMessage{to: to, text: "hi"}, m.sent[0])
}

func TestCaptionPrompt(t *testing.T) {
	got, ok := captionPrompt("  what is this ", false)
	assert.True(t, ok)
	assert.Equal(t, "what is this", got)

	got, ok = captionPrompt("/ask summarize", true)
	assert.True(t, ok)
	assert.Equal(t, "summarize", got)

	got, ok = captionPrompt("/ai", true)
	assert.True(t, ok)
	assert.Equal(t, "", got)

	_, ok = captionPrompt("just a photo", true)
	assert.False(t, ok)
}

func TestSupportedMedia(t *testing.T) {
	assert.True(t, supportedMedia("application/pdf"))
	assert.True(t, supportedMedia("image/jpeg"))
	assert.False(t, supportedMedia("application/zip"))
}
