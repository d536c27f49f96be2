package bot

import (
	"context"
	"gemini-rotator/internal/db"
	"gemini-rotator/internal/i18n"
	"gemini-rotator/internal/knowledge"
	geminiClient "gemini-rotator/pkg/gemini"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

const (
	knowledgeEntries = 3
	geminiTimeout    = 2 * time.Minute
)

// messenger is the part of *whatsmeow.Client the bot uses.
type messenger interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

type BotHandler struct {
	Client             messenger
	DB                 *db.Database
	Bundle             *goi18n.Bundle
	Gemini             *geminiClient.Client
	Knowledge          *knowledge.Knowledge
	KnowledgeEnabled   bool
	HistoryTokenBudget int
}

func (h *BotHandler) EventHandler(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		h.handleMessage(v)
	}
}

func (h *BotHandler) handleMessage(msg *events.Message) {
	senderJID := msg.Info.Sender.String()
	log.Printf("Processing message event from %s", senderJID)

	if msg.Info.IsFromMe {
		log.Println("Message is from me, ignoring")
		return
	}

	localizer := i18n.NewLocalizer(h.Bundle, h.DB.GetUserLang(senderJID))

	if doc := msg.Message.GetDocumentMessage(); doc != nil {
		h.handleMediaMessage(doc, doc.GetMimetype(), doc.GetCaption(), msg.Info, localizer)
		return
	}
	if img := msg.Message.GetImageMessage(); img != nil {
		h.handleMediaMessage(img, img.GetMimetype(), img.GetCaption(), msg.Info, localizer)
		return
	}

	var text string
	if msg.Message.GetConversation() != "" {
		text = msg.Message.GetConversation()
	} else if extMsg := msg.Message.GetExtendedTextMessage(); extMsg != nil {
		text = extMsg.GetText()
	}

	if text == "" {
		log.Println("Could not extract any valid text from the message, ignoring")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), geminiTimeout)
	defer cancel()

	if reply := h.respond(ctx, senderJID, strings.TrimSpace(text), localizer); reply != "" {
		h.sendMessage(msg.Info.Chat, reply)
	}
}

// respond handles a text message and returns the reply, "" for none.
func (h *BotHandler) respond(ctx context.Context, senderJID, text string, localizer *goi18n.Localizer) string {
	switch {
	case strings.HasPrefix(text, "/lang"):
		return h.handleLangCommand(text, senderJID, localizer)
	case text == "/reset" || text == "/newchat":
		return h.handleResetCommand(senderJID, localizer)
	case text == "/tokens":
		return h.handleTokensCommand(ctx, senderJID, localizer)
	default:
		return h.handleGeminiQuery(ctx, text, senderJID, localizer)
	}
}

func (h *BotHandler) handleResetCommand(senderJID string, localizer *goi18n.Localizer) string {
	if err := h.DB.DeleteConversationHistory(senderJID); err != nil {
		return i18n.Message(localizer, "history_reset_failed", nil)
	}
	return i18n.Message(localizer, "history_reset", nil)
}

func (h *BotHandler) handleLangCommand(text, senderJID string, localizer *goi18n.Localizer) string {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return ""
	}
	lang := strings.ToLower(parts[1])

	if !i18n.IsSupported(lang) {
		return i18n.Message(localizer, "lang_not_found", map[string]any{"Lang": lang})
	}

	if err := h.DB.SetUserLang(senderJID, lang); err != nil {
		log.Printf("Error setting language for %s: %v", senderJID, err)
		return ""
	}

	log.Printf("User %s language updated to %s", senderJID, lang)
	return i18n.Message(i18n.NewLocalizer(h.Bundle, lang), "lang_updated", nil)
}

func (h *BotHandler) handleTokensCommand(ctx context.Context, senderJID string, localizer *goi18n.Localizer) string {
	history := toContents(h.DB.GetConversationHistory(senderJID))

	tokens, err := h.Gemini.CountTokens(ctx, history)
	if err != nil {
		log.Printf("Error counting tokens for %s: %v", senderJID, err)
		return i18n.Message(localizer, "error_gemini", nil)
	}
	return i18n.Message(localizer, "history_tokens", map[string]any{"Tokens": tokens, "Messages": len(history)})
}

func (h *BotHandler) handleGeminiQuery(ctx context.Context, prompt, senderJID string, localizer *goi18n.Localizer) string {
	log.Printf("Forwarding message from %s to Gemini with history", senderJID)

	history := toContents(h.DB.GetConversationHistory(senderJID))
	history = append(history, &genai.Content{
		Parts: []genai.Part{genai.Text(prompt)},
		Role:  "user",
	})

	trimmed, err := h.Gemini.TrimHistory(ctx, history, h.HistoryTokenBudget)
	if err != nil {
		log.Printf("Could not trim history for %s, sending it whole: %v", senderJID, err)
	} else {
		history = trimmed
	}

	var systemPrompt string
	if h.KnowledgeEnabled && h.Knowledge != nil {
		systemPrompt = h.Knowledge.SystemPrompt(ctx, h.Gemini, prompt, knowledgeEntries)
	}

	response, err := h.Gemini.GenerateContent(ctx, history, systemPrompt)
	if err != nil {
		log.Printf("Error from Gemini API for user %s: %v", senderJID, err)
		return i18n.Message(localizer, "error_gemini", nil)
	}

	log.Printf("Received response from Gemini for %s, sending reply", senderJID)
	h.DB.AddMessageToHistory(senderJID, "user", prompt, "")
	h.DB.AddMessageToHistory(senderJID, "model", response, "")
	return response
}

func (h *BotHandler) sendMessage(recipient types.JID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.Client.SendMessage(ctx, recipient, &waE2E.Message{
		Conversation: &message,
	})
	if err != nil {
		log.Printf("Error sending message to %s: %v", recipient.String(), err)
	} else {
		log.Printf("Sent message to %s", recipient.String())
	}
}

func toContents(history []db.HistoryMessage) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range history {
		contents = append(contents, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Message)},
			Role:  msg.Role,
		})
	}
	return contents
}
