package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"torgbot/internal/models"
)

// ErrUnavailable is returned when no credential can produce a completion.
// It is a defined contract outcome, not a fault: callers fall back to the
// FAQ cache or a canned answer.
var ErrUnavailable = errors.New("completion API unavailable")

const completionTimeout = 30 * time.Second

// CompletionService calls the chat-completion API with credential failover.
// The rotation cursor advances after every attempt, successful or not, so load
// spreads round-robin across calls rather than only within one call's retries.
type CompletionService struct {
	apiURL     string
	model      string
	keys       []string
	httpClient *http.Client

	mu     sync.Mutex
	cursor int
}

// NewCompletionService creates a completion service over an ordered credential pool.
// An empty pool is valid: the bot then runs in FAQ-only mode.
func NewCompletionService(apiURL, model string, keys []string) *CompletionService {
	if len(keys) == 0 {
		log.Println("⚠️  [COMPLETION] No API keys configured, running in FAQ-only mode")
	}

	return &CompletionService{
		apiURL:     apiURL,
		model:      model,
		keys:       keys,
		httpClient: &http.Client{Timeout: completionTimeout},
	}
}

// HasKeys reports whether any credential is configured
func (s *CompletionService) HasKeys() bool {
	return len(s.keys) > 0
}

// nextKey returns the next credential and advances the rotation cursor
func (s *CompletionService) nextKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keys[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.keys)
	return key
}

// Complete sends a chat completion request, trying each credential at most once.
// A 429 moves to the next key immediately; any other non-2xx status or transport
// fault is logged and also moves on. Returns ErrUnavailable when the pool is
// empty or every key failed.
func (s *CompletionService) Complete(messages []models.ChatMessage, maxTokens int) (string, error) {
	if len(s.keys) == 0 {
		return "", ErrUnavailable
	}

	for attempt := 0; attempt < len(s.keys); attempt++ {
		apiKey := s.nextKey()

		answer, err := s.request(apiKey, messages, maxTokens)
		if err == nil {
			return answer, nil
		}

		if errors.Is(err, errThrottled) {
			log.Printf("⚠️  [COMPLETION] Key %s throttled, rotating", truncateKey(apiKey))
			continue
		}

		log.Printf("❌ [COMPLETION] Request with key %s failed: %v", truncateKey(apiKey), err)
	}

	log.Println("❌ [COMPLETION] All API keys exhausted")
	return "", ErrUnavailable
}

// errThrottled marks a 429 response for the rotation loop
var errThrottled = errors.New("rate limited")

// request performs a single attempt with one credential
func (s *CompletionService) request(apiKey string, messages []models.ChatMessage, maxTokens int) (string, error) {
	chatReq := models.ChatRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	}

	reqBody, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", s.apiURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errThrottled
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

// truncateKey shortens a credential for logging
func truncateKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:10] + "..."
}
