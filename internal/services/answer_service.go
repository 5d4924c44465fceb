package services

import (
	"log"
	"time"

	"torgbot/internal/models"
)

// AnswerService runs an admitted question through the answer pipeline:
// relevance check, FAQ cache, completion API, canned fallbacks. Admission
// control (the per-user rate limit) happens upstream in the bot handler.
type AnswerService struct {
	classifier *ClassifierService
	faq        *FAQService
	completion *CompletionService
	users      *UserService
}

func NewAnswerService(
	classifier *ClassifierService,
	faq *FAQService,
	completion *CompletionService,
	users *UserService,
) *AnswerService {
	return &AnswerService{
		classifier: classifier,
		faq:        faq,
		completion: completion,
		users:      users,
	}
}

// Answer produces a reply for the user's question. It always returns a usable
// result: every failure mode maps to a canned Russian answer, and a panic in
// any stage degrades to the generic error text instead of crashing the update
// loop.
func (s *AnswerService) Answer(userID int64, question string) (result *models.AnswerResult) {
	start := time.Now()

	// Registered first so it observes the recovered result too
	defer func() {
		if result != nil {
			recordAnswer(string(result.QuestionType), result.ResponseTime)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [ANSWER] Panic while answering user %d: %v", userID, r)
			result = &models.AnswerResult{
				Answer:       errorAnswer,
				IsRelevant:   true,
				QuestionType: models.IntentError,
				ResponseTime: time.Since(start).Seconds(),
			}
			s.users.LogRequest(userID, question, result)
		}
	}()

	relevant, intent := s.classifier.Classify(question)
	if !relevant {
		result = &models.AnswerResult{
			Answer:       irrelevantAnswer,
			IsRelevant:   false,
			QuestionType: models.IntentIrrelevant,
			ResponseTime: time.Since(start).Seconds(),
		}
		s.users.LogRequest(userID, question, result)
		return result
	}

	if answer, found := s.faq.Lookup(question); found {
		result = &models.AnswerResult{
			Answer:       answer,
			IsRelevant:   true,
			QuestionType: models.IntentCached,
			ResponseTime: time.Since(start).Seconds(),
		}
		s.users.LogRequest(userID, question, result)
		return result
	}

	answer, err := s.generate(question, intent)
	if err != nil {
		result = &models.AnswerResult{
			Answer:       fallbackAnswer,
			IsRelevant:   true,
			QuestionType: models.IntentFallback,
			ResponseTime: time.Since(start).Seconds(),
		}
		s.users.LogRequest(userID, question, result)
		return result
	}

	// Remember the answer so the next identical question is a cache hit
	s.faq.Store(question, answer)

	result = &models.AnswerResult{
		Answer:       answer,
		IsRelevant:   true,
		QuestionType: intent,
		ResponseTime: time.Since(start).Seconds(),
	}
	s.users.LogRequest(userID, question, result)
	return result
}

// generate builds the prompt for the detected intent and calls the completion API
func (s *AnswerService) generate(question string, intent models.Intent) (string, error) {
	systemPrompt := mainSystemPrompt
	if refinement, ok := intentPrompts[intent]; ok {
		systemPrompt = systemPrompt + "\n\n" + refinement
	}

	messages := []models.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	}

	return s.completion.Complete(messages, 1000)
}
