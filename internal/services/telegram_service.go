package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"

	"torgbot/internal/models"
)

const maxChunkSize = 4000 // Telegram caps messages at 4096 chars, leave margin

// TelegramService talks to the Telegram Bot API over plain HTTP.
// It supports both delivery modes: webhook (public deployments) and long
// polling (local development, no public URL needed).
type TelegramService struct {
	botToken string
	apiBase  string

	httpClient    *http.Client
	pollingClient *http.Client

	updateHandler func(*models.TelegramUpdate)

	pollerMux sync.Mutex
	stopChan  chan struct{}
	running   bool
}

func NewTelegramService(botToken string) *TelegramService {
	return &TelegramService{
		botToken:   botToken,
		apiBase:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Long polling holds the connection open for the poll timeout
		pollingClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetUpdateHandler registers the callback invoked for every incoming update
func (s *TelegramService) SetUpdateHandler(handler func(*models.TelegramUpdate)) {
	s.updateHandler = handler
}

func (s *TelegramService) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.apiBase, s.botToken, method)
}

// GetMe validates the bot token and returns the bot's username
func (s *TelegramService) GetMe() (string, error) {
	resp, err := s.httpClient.Get(s.methodURL("getMe"))
	if err != nil {
		return "", fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("invalid response from Telegram: %w", err)
	}
	if !result.OK {
		return "", fmt.Errorf("Telegram API error: %s", result.Description)
	}

	return result.Result.Username, nil
}

// SetWebhook registers the webhook URL with Telegram
func (s *TelegramService) SetWebhook(webhookURL string) error {
	payload := map[string]interface{}{
		"url":             webhookURL,
		"allowed_updates": []string{"message", "callback_query"},
	}

	if err := s.callAPI("setWebhook", payload); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	log.Printf("📡 [TELEGRAM] Webhook registered: %s", webhookURL)
	return nil
}

// DeleteWebhook removes the webhook, required before long polling can start
func (s *TelegramService) DeleteWebhook() error {
	if err := s.callAPI("deleteWebhook", map[string]interface{}{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	log.Println("📡 [TELEGRAM] Webhook deleted")
	return nil
}

// callAPI posts a JSON payload to a bot method and checks the ok flag
func (s *TelegramService) callAPI(method string, payload map[string]interface{}) error {
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", s.methodURL(method), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)

	if ok, _ := result["ok"].(bool); !ok {
		description, _ := result["description"].(string)
		return fmt.Errorf("%s", description)
	}
	return nil
}

// Telegram Markdown converter using telegold (goldmark with Telegram HTML renderer)
var telegramMarkdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// convertToTelegramHTML converts standard Markdown to Telegram-compatible HTML
func convertToTelegramHTML(text string) string {
	var buf bytes.Buffer
	if err := telegramMarkdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️  [TELEGRAM] Markdown conversion failed: %v", err)
		return text
	}
	return buf.String()
}

// SendMessage sends a message, splitting it into chunks when it exceeds the
// Telegram limit. The keyboard, if any, is attached to the last chunk so it
// appears under the complete answer.
func (s *TelegramService) SendMessage(chatID int64, text string, keyboard *models.InlineKeyboard) error {
	chunks := splitMessageIntoChunks(text, maxChunkSize)
	totalChunks := len(chunks)

	if totalChunks > 1 {
		log.Printf("📨 [TELEGRAM] Splitting message (%d chars) into %d chunks", len(text), totalChunks)
	}

	for i, chunk := range chunks {
		if totalChunks > 1 {
			chunk = fmt.Sprintf("**[Часть %d/%d]**\n\n%s", i+1, totalChunks, chunk)
		}

		var chunkKeyboard *models.InlineKeyboard
		if i == totalChunks-1 {
			chunkKeyboard = keyboard
		}

		if err := s.sendSingle(chatID, chunk, chunkKeyboard); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, totalChunks, err)
		}

		// Small delay between chunks to avoid hitting Telegram's flood limit
		if i < totalChunks-1 {
			time.Sleep(300 * time.Millisecond)
		}
	}

	return nil
}

// sendSingle sends one message, HTML first with a plain-text retry when
// Telegram rejects the markup
func (s *TelegramService) sendSingle(chatID int64, text string, keyboard *models.InlineKeyboard) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       convertToTelegramHTML(text),
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}

	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", s.methodURL("sendMessage"), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	errStr := string(bodyBytes)

	if strings.Contains(errStr, "can't parse entities") {
		log.Printf("⚠️  [TELEGRAM] HTML parsing failed, retrying without parse_mode")

		payload = map[string]interface{}{
			"chat_id": chatID,
			"text":    stripMarkdown(text),
		}
		if keyboard != nil {
			payload["reply_markup"] = keyboard
		}
		body, _ = json.Marshal(payload)

		req, _ = http.NewRequest("POST", s.methodURL("sendMessage"), bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp2, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send Telegram message (plain): %w", err)
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != 200 {
			bodyBytes2, _ := io.ReadAll(resp2.Body)
			return fmt.Errorf("Telegram API error (plain): %s", string(bodyBytes2))
		}
		return nil
	}

	return fmt.Errorf("Telegram API error: %s", errStr)
}

// stripMarkdown removes Markdown formatting for plain text fallback
func stripMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	codeBlockPattern := regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
	text = codeBlockPattern.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "`", "")
	text = strings.ReplaceAll(text, "~~", "")
	headerPattern := regexp.MustCompile(`(?m)^#{1,6}\s+`)
	text = headerPattern.ReplaceAllString(text, "")
	linkPattern := regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	text = linkPattern.ReplaceAllString(text, "$1 ($2)")
	return text
}

// splitMessageIntoChunks splits a message into chunks respecting boundaries
func splitMessageIntoChunks(text string, maxSize int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxSize {
			chunks = append(chunks, remaining)
			break
		}

		chunk := remaining[:maxSize]
		breakPoint := maxSize

		if idx := strings.LastIndex(chunk, "\n\n"); idx > maxSize/2 {
			breakPoint = idx + 2
		} else if idx := strings.LastIndex(chunk, "\n"); idx > maxSize/2 {
			breakPoint = idx + 1
		} else if idx := strings.LastIndex(chunk, ". "); idx > maxSize/2 {
			breakPoint = idx + 2
		} else if idx := strings.LastIndex(chunk, " "); idx > maxSize/2 {
			breakPoint = idx + 1
		}

		chunks = append(chunks, strings.TrimSpace(remaining[:breakPoint]))
		remaining = strings.TrimSpace(remaining[breakPoint:])
	}

	return chunks
}

// SendTyping shows the "typing..." indicator while an answer is generated
func (s *TelegramService) SendTyping(chatID int64) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"action":  "typing",
	}
	if err := s.callAPI("sendChatAction", payload); err != nil {
		log.Printf("⚠️  [TELEGRAM] Failed to send typing action: %v", err)
	}
}

// AnswerCallbackQuery acknowledges a pressed inline button so the client
// stops showing its spinner
func (s *TelegramService) AnswerCallbackQuery(callbackID string) {
	payload := map[string]interface{}{
		"callback_query_id": callbackID,
	}
	if err := s.callAPI("answerCallbackQuery", payload); err != nil {
		log.Printf("⚠️  [TELEGRAM] Failed to answer callback query: %v", err)
	}
}

// EditMessageText replaces the text and keyboard of a previously sent message
func (s *TelegramService) EditMessageText(chatID, messageID int64, text string, keyboard *models.InlineKeyboard) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       convertToTelegramHTML(text),
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}
	return s.callAPI("editMessageText", payload)
}

// StartPolling runs the long polling loop until Stop is called.
// Any registered webhook is removed first; Telegram rejects getUpdates while
// a webhook is active.
func (s *TelegramService) StartPolling() {
	s.pollerMux.Lock()
	if s.running {
		s.pollerMux.Unlock()
		log.Println("📡 [POLLING] Poller already running")
		return
	}
	s.stopChan = make(chan struct{})
	s.running = true
	s.pollerMux.Unlock()

	if err := s.DeleteWebhook(); err != nil {
		log.Printf("⚠️  [POLLING] Failed to delete webhook: %v", err)
	}

	go s.runPoller()
	log.Println("📡 [POLLING] Long polling started")
}

// Stop shuts down the polling loop
func (s *TelegramService) Stop() {
	s.pollerMux.Lock()
	defer s.pollerMux.Unlock()

	if s.running {
		close(s.stopChan)
		s.running = false
		log.Println("📡 [POLLING] Poller stopped")
	}
}

func (s *TelegramService) runPoller() {
	var lastOffset int64

	for {
		select {
		case <-s.stopChan:
			return
		default:
			updates, err := s.getUpdates(lastOffset)
			if err != nil {
				log.Printf("⚠️  [POLLING] Error getting updates: %v", err)
				time.Sleep(5 * time.Second)
				continue
			}

			for _, update := range updates {
				if update.UpdateID >= lastOffset {
					lastOffset = update.UpdateID + 1
				}

				if s.updateHandler != nil {
					s.updateHandler(update)
				}
			}
		}
	}
}

// getUpdates fetches updates using long polling
func (s *TelegramService) getUpdates(offset int64) ([]*models.TelegramUpdate, error) {
	url := s.methodURL("getUpdates") + `?timeout=30&allowed_updates=["message","callback_query"]`
	if offset > 0 {
		url += fmt.Sprintf("&offset=%d", offset)
	}

	req, _ := http.NewRequest("GET", url, nil)

	resp, err := s.pollingClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool                     `json:"ok"`
		Result []*models.TelegramUpdate `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.OK {
		return nil, fmt.Errorf("Telegram API returned not OK")
	}

	return result.Result, nil
}
