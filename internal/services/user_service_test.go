package services

import (
	"testing"

	"torgbot/internal/models"
)

func TestUpsertUserCreatesAndUpdates(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	u := &models.TelegramUser{ID: 500, Username: "ivan", FirstName: "Иван"}
	if err := svc.UpsertUser(u); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	u.Username = "ivan_new"
	if err := svc.UpsertUser(u); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	var count int
	var username string
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM users WHERE user_id = 500`,
	).Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("Expected one row per user, got %d", count)
	}
	if err := db.QueryRow(
		`SELECT username FROM users WHERE user_id = 500`,
	).Scan(&username); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if username != "ivan_new" {
		t.Errorf("Expected refreshed username, got %q", username)
	}
}

func TestStatisticsAggregation(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	svc.UpsertUser(&models.TelegramUser{ID: 600})
	svc.UpsertUser(&models.TelegramUser{ID: 601})

	relevant := &models.AnswerResult{Answer: "a", IsRelevant: true, QuestionType: models.IntentGeneral}
	irrelevant := &models.AnswerResult{Answer: "b", IsRelevant: false, QuestionType: models.IntentIrrelevant}

	svc.LogRequest(600, "как купить лот", relevant)
	svc.LogRequest(600, "как купить лот", relevant)
	svc.LogRequest(601, "про погоду", irrelevant)
	svc.LogChannelVisit(600)

	stats, err := svc.GetStatistics()
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	if stats.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", stats.TotalRequests)
	}
	if stats.RelevantRequests != 2 {
		t.Errorf("RelevantRequests = %d, want 2", stats.RelevantRequests)
	}
	if stats.UniqueUsers != 2 {
		t.Errorf("UniqueUsers = %d, want 2", stats.UniqueUsers)
	}
	if stats.ChannelVisits != 1 {
		t.Errorf("ChannelVisits = %d, want 1", stats.ChannelVisits)
	}
	if len(stats.PopularQuestions) == 0 || stats.PopularQuestions[0].Question != "как купить лот" {
		t.Errorf("Unexpected popular questions: %+v", stats.PopularQuestions)
	}

	var total int64
	if err := db.QueryRow(`SELECT total_requests FROM users WHERE user_id = 600`).Scan(&total); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if total != 2 {
		t.Errorf("User counter = %d, want 2", total)
	}
}

func TestCleanupOldDataKeepsRecentRows(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	if _, err := db.Exec(
		`INSERT INTO requests (user_id, question, answer, is_relevant, question_type, response_time, created_at)
		 VALUES (700, 'старый вопрос', 'ответ', TRUE, 'general', 1.0, datetime('now', '-120 days')),
		        (700, 'свежий вопрос', 'ответ', TRUE, 'general', 1.0, datetime('now'))`,
	); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	removed, err := svc.CleanupOldData(90)
	if err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed row, got %d", removed)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM requests`).Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the recent row to survive, got %d rows", count)
	}
}
