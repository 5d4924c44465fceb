package models

import "time"

// Intent is the coarse topic category assigned to a question.
// It selects the specialized prompt for the completion API and is recorded
// on every request log row.
type Intent string

const (
	IntentDocuments  Intent = "documents"
	IntentStrategy   Intent = "strategy"
	IntentLegal      Intent = "legal"
	IntentProperty   Intent = "property"
	IntentGeneral    Intent = "general"
	IntentCached     Intent = "cached"
	IntentFallback   Intent = "fallback"
	IntentIrrelevant Intent = "irrelevant"
	IntentError      Intent = "error"
)

// RequestRecord is one answered question. Append-only, never mutated.
type RequestRecord struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	IsRelevant   bool      `json:"is_relevant"`
	QuestionType Intent    `json:"question_type"`
	ResponseTime float64   `json:"response_time"` // seconds
	CreatedAt    time.Time `json:"created_at"`
}

// AnswerResult is the outcome of running a question through the answer pipeline.
type AnswerResult struct {
	Answer       string  `json:"answer"`
	IsRelevant   bool    `json:"is_relevant"`
	QuestionType Intent  `json:"question_type"`
	ResponseTime float64 `json:"response_time"`
}

// Statistics is the aggregate view served to operators.
type Statistics struct {
	TotalRequests    int64             `json:"total_requests"`
	RelevantRequests int64             `json:"relevant_requests"`
	UniqueUsers      int64             `json:"unique_users"`
	ChannelVisits    int64             `json:"channel_visits"`
	PopularQuestions []PopularQuestion `json:"popular_questions"`
}

// PopularQuestion is one entry of the most-asked list.
type PopularQuestion struct {
	Question string `json:"question"`
	Count    int64  `json:"count"`
}
