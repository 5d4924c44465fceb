package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"torgbot/internal/models"
)

func TestClassifyKeywordAndCourtesy(t *testing.T) {
	// Keyword and courtesy layers never reach the network
	svc := NewClassifierService(NewCompletionService("http://unused", "m", nil))

	tests := []struct {
		name     string
		question string
		relevant bool
		intent   models.Intent
	}{
		{"courtesy greeting", "Привет!", true, models.IntentCached},
		{"courtesy thanks", "Большое спасибо за помощь", true, models.IntentCached},
		{"documents intent", "Какие документы нужны для участия?", true, models.IntentDocuments},
		{"strategy intent", "Какая стратегия ставок лучше на аукционе?", true, models.IntentStrategy},
		{"legal intent", "Что говорит закон о правах кредиторов?", true, models.IntentLegal},
		{"property intent", "Как проверить дом с торгов?", true, models.IntentProperty},
		{"general domain", "Расскажи про банкротство", true, models.IntentGeneral},
		{"off-topic no keys", "Какая погода в Москве?", false, models.IntentIrrelevant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relevant, intent := svc.Classify(tt.question)
			if relevant != tt.relevant {
				t.Errorf("Classify(%q) relevant = %v, want %v", tt.question, relevant, tt.relevant)
			}
			if intent != tt.intent {
				t.Errorf("Classify(%q) intent = %v, want %v", tt.question, intent, tt.intent)
			}
		})
	}
}

func TestClassifyRemoteVerdict(t *testing.T) {
	verdict := "ДА"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionResponse(verdict))
	}))
	defer server.Close()

	svc := NewClassifierService(NewCompletionService(server.URL, "m", []string{"key"}))

	relevant, intent := svc.Classify("Стоит ли этим заниматься новичку?")
	if !relevant {
		t.Error("Expected remote ДА verdict to mark question relevant")
	}
	if intent != models.IntentGeneral {
		t.Errorf("Expected general intent, got %v", intent)
	}

	verdict = "НЕТ"
	relevant, intent = svc.Classify("Посоветуй рецепт борща")
	if relevant {
		t.Error("Expected remote НЕТ verdict to mark question irrelevant")
	}
	if intent != models.IntentIrrelevant {
		t.Errorf("Expected irrelevant intent, got %v", intent)
	}
}

func TestClassifyRemoteFailureMeansOffTopic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewClassifierService(NewCompletionService(server.URL, "m", []string{"key"}))

	// A failed remote check is no affirmative verdict, same as a НЕТ reply
	relevant, intent := svc.Classify("Посоветуй рецепт борща")
	if relevant {
		t.Error("Expected off-topic when the remote check errors")
	}
	if intent != models.IntentIrrelevant {
		t.Errorf("Expected irrelevant intent, got %v", intent)
	}
}
