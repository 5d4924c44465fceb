package services

import (
	"fmt"
	"log"
	"time"

	"torgbot/internal/database"
	"torgbot/internal/models"
)

// UserService owns the persisted user profiles, the request log and the
// aggregate statistics built from them.
type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

// UpsertUser creates the user on first contact and refreshes the profile
// fields and activity timestamp on every later one
func (s *UserService) UpsertUser(u *models.TelegramUser) error {
	stmt := `INSERT INTO users (user_id, username, first_name, last_name) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_activity = CURRENT_TIMESTAMP`
	if s.db.IsMySQL() {
		stmt = `INSERT INTO users (user_id, username, first_name, last_name) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			username = VALUES(username),
			first_name = VALUES(first_name),
			last_name = VALUES(last_name),
			last_activity = CURRENT_TIMESTAMP`
	}

	_, err := s.db.Exec(stmt, u.ID, u.Username, u.FirstName, u.LastName)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

// LogRequest appends a request record and bumps the user's counter
func (s *UserService) LogRequest(userID int64, question string, result *models.AnswerResult) {
	_, err := s.db.Exec(
		`INSERT INTO requests (user_id, question, answer, is_relevant, question_type, response_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, question, result.Answer, result.IsRelevant, string(result.QuestionType), result.ResponseTime,
	)
	if err != nil {
		log.Printf("❌ [USER] Failed to log request for user %d: %v", userID, err)
		return
	}

	if _, err := s.db.Exec(
		`UPDATE users SET total_requests = total_requests + 1, last_activity = CURRENT_TIMESTAMP WHERE user_id = ?`,
		userID,
	); err != nil {
		log.Printf("⚠️  [USER] Failed to bump request counter for user %d: %v", userID, err)
	}
}

// LogChannelVisit records a click-through to the knowledge channel
func (s *UserService) LogChannelVisit(userID int64) {
	if _, err := s.db.Exec(
		`INSERT INTO channel_visits (user_id) VALUES (?)`, userID,
	); err != nil {
		log.Printf("⚠️  [USER] Failed to log channel visit for user %d: %v", userID, err)
	}
}

// GetStatistics aggregates the last seven days of activity
func (s *UserService) GetStatistics() (*models.Statistics, error) {
	stats := &models.Statistics{}
	since := sqlTimestamp(time.Now().AddDate(0, 0, -7))

	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(is_relevant), 0) FROM requests
		 WHERE created_at >= ?`, since,
	).Scan(&stats.TotalRequests, &stats.RelevantRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate requests: %w", err)
	}

	err = s.db.QueryRow(
		`SELECT COUNT(DISTINCT user_id) FROM requests
		 WHERE created_at >= ?`, since,
	).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique users: %w", err)
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM channel_visits
		 WHERE visited_at >= ?`, since,
	).Scan(&stats.ChannelVisits)
	if err != nil {
		return nil, fmt.Errorf("failed to count channel visits: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT question, COUNT(*) as cnt FROM requests
		 WHERE is_relevant = TRUE AND created_at >= ?
		 GROUP BY question ORDER BY cnt DESC LIMIT 5`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch popular questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pq models.PopularQuestion
		if err := rows.Scan(&pq.Question, &pq.Count); err != nil {
			return nil, fmt.Errorf("failed to scan popular question: %w", err)
		}
		stats.PopularQuestions = append(stats.PopularQuestions, pq)
	}

	return stats, nil
}

// CleanupOldData trims request, visit and delivered-followup history past the
// retention horizon. Users and the FAQ cache are never aged out.
func (s *UserService) CleanupOldData(retentionDays int) (int64, error) {
	var removed int64
	horizon := sqlTimestamp(time.Now().AddDate(0, 0, -retentionDays))

	res, err := s.db.Exec(`DELETE FROM requests WHERE created_at < ?`, horizon)
	if err != nil {
		return 0, fmt.Errorf("failed to clean requests: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.Exec(`DELETE FROM channel_visits WHERE visited_at < ?`, horizon)
	if err != nil {
		return 0, fmt.Errorf("failed to clean channel visits: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	// Delivered follow-ups are kept long enough for the cooldown check, then
	// aged out with everything else
	res, err = s.db.Exec(
		`DELETE FROM auto_messages WHERE sent = TRUE AND created_at < ?`, horizon,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean auto messages: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	return removed, nil
}

// sqlTimestamp formats a cutoff the way both dialects store timestamp columns
func sqlTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
