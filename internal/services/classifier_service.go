package services

import (
	"fmt"
	"log"
	"strings"

	"torgbot/internal/models"
)

// ClassifierService decides whether a question belongs to the bankruptcy-auction
// domain and which specialist prompt should answer it. Classification is layered:
// a courtesy-phrase check, then a keyword scan, then a remote yes/no probe for
// questions the keyword list does not cover.
type ClassifierService struct {
	completion *CompletionService
}

func NewClassifierService(completion *CompletionService) *ClassifierService {
	return &ClassifierService{completion: completion}
}

// Classify returns whether the question is on-topic and the detected intent.
// Courtesy phrases are always on-topic so the FAQ cache can greet the user.
// When neither layer matches and no credential is available, the question is
// treated as off-topic rather than burning the user's rate budget on a guess.
func (s *ClassifierService) Classify(question string) (bool, models.Intent) {
	lower := strings.ToLower(question)

	for _, phrase := range courtesyPhrases {
		if strings.Contains(lower, phrase) {
			return true, models.IntentCached
		}
	}

	if containsDomainKeyword(lower) {
		return true, s.detectIntent(lower)
	}

	if !s.completion.HasKeys() {
		return false, models.IntentIrrelevant
	}

	relevant, err := s.remoteCheck(question)
	if err != nil {
		// No affirmative verdict means off-topic, same as a НЕТ reply
		log.Printf("⚠️  [CLASSIFIER] Remote relevance check failed, treating as off-topic: %v", err)
		return false, models.IntentIrrelevant
	}

	if !relevant {
		return false, models.IntentIrrelevant
	}

	return true, models.IntentGeneral
}

// detectIntent picks the first intent whose keyword list matches, in a fixed
// priority order, falling back to the general prompt
func (s *ClassifierService) detectIntent(lower string) models.Intent {
	for _, intent := range intentOrder {
		for _, keyword := range intentKeywords[intent] {
			if strings.Contains(lower, keyword) {
				return intent
			}
		}
	}
	return models.IntentGeneral
}

// remoteCheck asks the completion API for a single-token yes/no verdict
func (s *ClassifierService) remoteCheck(question string) (bool, error) {
	messages := []models.ChatMessage{
		{Role: "user", Content: fmt.Sprintf(relevanceCheckPrompt, question)},
	}

	answer, err := s.completion.Complete(messages, 10)
	if err != nil {
		return false, err
	}

	verdict := strings.ToUpper(strings.TrimSpace(answer))
	return strings.Contains(verdict, "ДА"), nil
}

func containsDomainKeyword(lower string) bool {
	for _, keyword := range domainKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
