package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"torgbot/internal/database"
	"torgbot/internal/models"
)

// MessageSender delivers a message to a chat. Satisfied by TelegramService;
// tests substitute a recorder.
type MessageSender interface {
	SendMessage(chatID int64, text string, keyboard *models.InlineKeyboard) error
}

// FollowupService schedules and delivers the post-question nudge pair: a short
// follow-up about an hour after a user's question and a longer one three days
// later. Scheduling is idempotent per user, one pending pair at a time, with a
// cooldown after the last delivered follow-up.
type FollowupService struct {
	db     *database.DB
	sender MessageSender

	isAdmin    func(int64) bool
	shortDelay time.Duration
	longDelay  time.Duration
	cooldown   time.Duration

	specialistContact string
	trainingContact   string

	now func() time.Time
}

func NewFollowupService(
	db *database.DB,
	sender MessageSender,
	isAdmin func(int64) bool,
	shortDelay, longDelay, cooldown time.Duration,
	specialistContact, trainingContact string,
) *FollowupService {
	return &FollowupService{
		db:                db,
		sender:            sender,
		isAdmin:           isAdmin,
		shortDelay:        shortDelay,
		longDelay:         longDelay,
		cooldown:          cooldown,
		specialistContact: specialistContact,
		trainingContact:   trainingContact,
		now:               time.Now,
	}
}

// ScheduleIfEligible books the follow-up pair for the user after a question.
// Skipped for admins, for users with an undelivered follow-up pending, and
// for users inside the cooldown after their last delivered follow-up.
func (s *FollowupService) ScheduleIfEligible(userID int64) error {
	if s.isAdmin(userID) {
		return nil
	}

	pending, err := s.hasPending(userID)
	if err != nil {
		return fmt.Errorf("failed to check pending follow-ups: %w", err)
	}
	if pending {
		return nil
	}

	inCooldown, err := s.inCooldown(userID)
	if err != nil {
		return fmt.Errorf("failed to check follow-up cooldown: %w", err)
	}
	if inCooldown {
		return nil
	}

	now := s.now()
	schedule := []struct {
		kind models.FollowupKind
		at   time.Time
	}{
		{models.FollowupShort, now.Add(s.shortDelay)},
		{models.FollowupLong, now.Add(s.longDelay)},
	}

	// One transaction: the pair is created together or not at all
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin follow-up transaction: %w", err)
	}
	for _, item := range schedule {
		if _, err := tx.Exec(
			`INSERT INTO auto_messages (user_id, message_type, scheduled_time) VALUES (?, ?, ?)`,
			userID, string(item.kind), item.at,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to schedule %s follow-up: %w", item.kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit follow-up pair: %w", err)
	}

	log.Printf("📅 [FOLLOWUP] Scheduled follow-up pair for user %d", userID)
	return nil
}

func (s *FollowupService) hasPending(userID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM auto_messages WHERE user_id = ? AND sent = FALSE`, userID,
	).Scan(&count)
	return count > 0, err
}

func (s *FollowupService) inCooldown(userID int64) (bool, error) {
	var sentAt time.Time
	err := s.db.QueryRow(
		`SELECT sent_at FROM auto_messages
		 WHERE user_id = ? AND sent = TRUE AND sent_at IS NOT NULL
		 ORDER BY sent_at DESC LIMIT 1`, userID,
	).Scan(&sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return s.now().Sub(sentAt) < s.cooldown, nil
}

// DispatchDue delivers every follow-up whose scheduled time has passed, oldest
// first. A follow-up is marked sent whether or not delivery succeeded: the
// user may have blocked the bot, and retrying a nudge forever is worse than
// dropping it.
func (s *FollowupService) DispatchDue() (int, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, message_type FROM auto_messages
		 WHERE sent = FALSE AND scheduled_time <= ?
		 ORDER BY scheduled_time ASC`, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due follow-ups: %w", err)
	}

	var due []models.Followup
	for rows.Next() {
		var f models.Followup
		var kind string
		if err := rows.Scan(&f.ID, &f.UserID, &kind); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan follow-up: %w", err)
		}
		f.Kind = models.FollowupKind(kind)
		due = append(due, f)
	}
	rows.Close()

	delivered := 0
	for _, f := range due {
		text, keyboard := s.composeMessage(f.Kind)

		if err := s.sender.SendMessage(f.UserID, text, keyboard); err != nil {
			log.Printf("⚠️  [FOLLOWUP] Delivery to user %d failed: %v", f.UserID, err)
			if m := GetMetrics(); m != nil {
				m.FollowupsFailed.Inc()
			}
		} else {
			delivered++
			if m := GetMetrics(); m != nil {
				m.FollowupsDispatched.Inc()
			}
		}

		if _, err := s.db.Exec(
			`UPDATE auto_messages SET sent = TRUE, sent_at = ? WHERE id = ?`,
			s.now(), f.ID,
		); err != nil {
			log.Printf("❌ [FOLLOWUP] Failed to mark follow-up %d sent: %v", f.ID, err)
		}
	}

	if len(due) > 0 {
		log.Printf("📬 [FOLLOWUP] Dispatched %d follow-ups (%d delivered)", len(due), delivered)
	}
	return delivered, nil
}

// composeMessage builds the follow-up text and its action keyboard
func (s *FollowupService) composeMessage(kind models.FollowupKind) (string, *models.InlineKeyboard) {
	switch kind {
	case models.FollowupShort:
		keyboard := &models.InlineKeyboard{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				models.Row("💬 Задать вопрос", "ask_question"),
				models.URLRow("👨‍💼 Связаться со специалистом", s.specialistContact),
			},
		}
		return "Остались вопросы по торгам? Я на связи — задайте вопрос, " +
			"или обратитесь к нашему специалисту за персональной консультацией.", keyboard
	case models.FollowupLong:
		keyboard := &models.InlineKeyboard{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				models.URLRow("🎓 Записаться на обучение", s.trainingContact),
				models.URLRow("👨‍💼 Связаться со специалистом", s.specialistContact),
			},
		}
		return "Хотите разобраться в торгах по банкротству глубже? " +
			"Наше обучение поможет выйти на первую сделку с сопровождением эксперта.", keyboard
	default:
		return "Мы на связи, если появятся вопросы по торгам по банкротству.", nil
	}
}
