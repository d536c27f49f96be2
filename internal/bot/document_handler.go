package bot

import (
	"context"
	"gemini-rotator/internal/i18n"
	"log"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

var groupTriggers = []string{"/ask", "/ai"}

func (h *BotHandler) handleMediaMessage(media whatsmeow.DownloadableMessage, mimeType, caption string, info types.MessageInfo, localizer *goi18n.Localizer) {
	senderJID := info.Sender.String()
	log.Printf("Processing media message from %s", senderJID)

	caption, ok := captionPrompt(caption, info.IsGroup)
	if !ok {
		log.Printf("Media in group from %s without trigger, ignoring", senderJID)
		return
	}

	if !supportedMedia(mimeType) {
		log.Printf("Received unsupported media from %s with MIME type %s, ignoring", senderJID, mimeType)
		h.sendMessage(info.Chat, i18n.Message(localizer, "unsupported_document", nil))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), geminiTimeout)
	defer cancel()

	data, err := h.Client.Download(ctx, media)
	if err != nil {
		log.Printf("Failed to download media from %s: %v", senderJID, err)
		return
	}

	historyJID := senderJID
	if info.IsGroup {
		historyJID = info.Chat.String()
	}
	h.sendMessage(info.Chat, h.answerMedia(ctx, caption, mimeType, data, historyJID, info.PushName, localizer))
}

func (h *BotHandler) answerMedia(ctx context.Context, caption, mimeType string, data []byte, historyJID, userName string, localizer *goi18n.Localizer) string {
	if caption == "" {
		caption = i18n.Message(localizer, "default_document_prompt", nil)
	}

	response, err := h.Gemini.GenerateContentWithBlob(ctx, caption, mimeType, data)
	if err != nil {
		log.Printf("Error from Gemini document API for %s: %v", historyJID, err)
		return i18n.Message(localizer, "error_gemini", nil)
	}

	log.Printf("Received document response from Gemini for %s, sending reply", historyJID)
	h.DB.AddMessageToHistory(historyJID, "user", "[User sent a "+mediaLabel(mimeType)+"] "+caption, userName)
	h.DB.AddMessageToHistory(historyJID, "model", response, "")
	return response
}

// captionPrompt strips the group trigger from caption. In groups, media
// without a trigger is not for the bot.
func captionPrompt(caption string, isGroup bool) (string, bool) {
	if !isGroup {
		return strings.TrimSpace(caption), true
	}
	for _, trigger := range groupTriggers {
		if caption == trigger {
			return "", true
		}
		if strings.HasPrefix(caption, trigger+" ") {
			return strings.TrimSpace(strings.TrimPrefix(caption, trigger+" ")), true
		}
	}
	return "", false
}

func supportedMedia(mimeType string) bool {
	return mimeType == "application/pdf" || strings.HasPrefix(mimeType, "image/")
}

func mediaLabel(mimeType string) string {
	if mimeType == "application/pdf" {
		return "PDF"
	}
	return "image"
}
