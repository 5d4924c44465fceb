package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"torgbot/internal/models"
)

func completionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"role": "assistant", "content": content}},
		},
	}
}

func TestCompleteRotatesOnThrottle(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(completionResponse("ответ"))
	}))
	defer server.Close()

	svc := NewCompletionService(server.URL, "test-model", []string{"key-a", "key-b", "key-c"})

	answer, err := svc.Complete([]models.ChatMessage{{Role: "user", Content: "вопрос"}}, 100)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "ответ" {
		t.Errorf("Expected 'ответ', got %q", answer)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}

	// Cursor advanced past every attempted key so the next call starts fresh
	if svc.cursor != 0 {
		t.Errorf("Expected cursor 0 after full rotation, got %d", svc.cursor)
	}
}

func TestCompleteExhaustsAllKeys(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := NewCompletionService(server.URL, "test-model", []string{"key-a", "key-b"})

	_, err := svc.Complete([]models.ChatMessage{{Role: "user", Content: "вопрос"}}, 100)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected each key tried once, got %d attempts", calls)
	}
}

func TestCompleteEmptyPoolNoNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be made with an empty key pool")
	}))
	defer server.Close()

	svc := NewCompletionService(server.URL, "test-model", nil)

	_, err := svc.Complete([]models.ChatMessage{{Role: "user", Content: "вопрос"}}, 100)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
}

func TestCompleteSendsAuthorization(t *testing.T) {
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(completionResponse("ok"))
	}))
	defer server.Close()

	svc := NewCompletionService(server.URL, "test-model", []string{"secret-key"})

	if _, err := svc.Complete([]models.ChatMessage{{Role: "user", Content: "q"}}, 50); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
}
