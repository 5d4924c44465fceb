package services

import (
	"errors"
	"testing"
	"time"

	"torgbot/internal/database"
	"torgbot/internal/models"
)

type fakeSender struct {
	sent    []int64
	failAll bool
}

func (f *fakeSender) SendMessage(chatID int64, text string, keyboard *models.InlineKeyboard) error {
	if f.failAll {
		return errors.New("forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func newFollowupService(t *testing.T, sender MessageSender, isAdmin func(int64) bool) (*FollowupService, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	svc := NewFollowupService(db, sender, isAdmin,
		time.Hour, 72*time.Hour, 14*24*time.Hour,
		"https://t.me/specialist", "https://t.me/training")
	return svc, db
}

func countFollowups(t *testing.T, db *database.DB, userID int64) int {
	t.Helper()
	var count int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM auto_messages WHERE user_id = ?`, userID,
	).Scan(&count); err != nil {
		t.Fatalf("Failed to count follow-ups: %v", err)
	}
	return count
}

func TestScheduleCreatesPair(t *testing.T) {
	svc, db := newFollowupService(t, &fakeSender{}, nil)
	now := time.Now()
	svc.now = func() time.Time { return now }

	if err := svc.ScheduleIfEligible(1); err != nil {
		t.Fatalf("ScheduleIfEligible failed: %v", err)
	}

	rows, err := db.Query(
		`SELECT message_type, scheduled_time FROM auto_messages WHERE user_id = 1 ORDER BY scheduled_time`,
	)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var kinds []string
	var times []time.Time
	for rows.Next() {
		var kind string
		var at time.Time
		if err := rows.Scan(&kind, &at); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		kinds = append(kinds, kind)
		times = append(times, at)
	}

	if len(kinds) != 2 || kinds[0] != "1hour" || kinds[1] != "3days" {
		t.Fatalf("Expected [1hour 3days] pair, got %v", kinds)
	}
	if !times[0].Equal(now.Add(time.Hour)) {
		t.Errorf("Short follow-up scheduled at %v, want %v", times[0], now.Add(time.Hour))
	}
	if !times[1].Equal(now.Add(72 * time.Hour)) {
		t.Errorf("Long follow-up scheduled at %v, want %v", times[1], now.Add(72*time.Hour))
	}
}

func TestSchedulePendingDedupe(t *testing.T) {
	svc, db := newFollowupService(t, &fakeSender{}, nil)

	if err := svc.ScheduleIfEligible(2); err != nil {
		t.Fatalf("First schedule failed: %v", err)
	}
	if err := svc.ScheduleIfEligible(2); err != nil {
		t.Fatalf("Second schedule failed: %v", err)
	}

	if got := countFollowups(t, db, 2); got != 2 {
		t.Errorf("Expected a single pending pair, got %d rows", got)
	}
}

func TestSchedulePairIsAtomic(t *testing.T) {
	svc, db := newFollowupService(t, &fakeSender{}, nil)

	// Reject the long entry so the second insert of the pair fails
	if _, err := db.Exec(
		`CREATE TRIGGER reject_long BEFORE INSERT ON auto_messages
		 WHEN NEW.message_type = '3days'
		 BEGIN SELECT RAISE(ABORT, 'rejected'); END`,
	); err != nil {
		t.Fatalf("Failed to create trigger: %v", err)
	}

	if err := svc.ScheduleIfEligible(5); err == nil {
		t.Fatal("Expected ScheduleIfEligible to fail")
	}

	// The short entry must have been rolled back with it
	if got := countFollowups(t, db, 5); got != 0 {
		t.Errorf("Expected no rows after a failed pair insert, got %d", got)
	}
}

func TestScheduleSkipsAdmins(t *testing.T) {
	svc, db := newFollowupService(t, &fakeSender{}, func(id int64) bool { return id == 42 })

	if err := svc.ScheduleIfEligible(42); err != nil {
		t.Fatalf("ScheduleIfEligible failed: %v", err)
	}

	if got := countFollowups(t, db, 42); got != 0 {
		t.Errorf("Admins must not get follow-ups, got %d rows", got)
	}
}

func TestScheduleRespectsCooldown(t *testing.T) {
	svc, db := newFollowupService(t, &fakeSender{}, nil)
	now := time.Now()
	svc.now = func() time.Time { return now }

	if err := svc.ScheduleIfEligible(3); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// Deliver the pair, then try to schedule again inside the cooldown
	now = now.Add(73 * time.Hour)
	if _, err := svc.DispatchDue(); err != nil {
		t.Fatalf("DispatchDue failed: %v", err)
	}

	now = now.Add(24 * time.Hour)
	if err := svc.ScheduleIfEligible(3); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if got := countFollowups(t, db, 3); got != 2 {
		t.Errorf("Expected no new rows inside the cooldown, got %d total", got)
	}

	// Past the cooldown a new pair is allowed
	now = now.Add(15 * 24 * time.Hour)
	if err := svc.ScheduleIfEligible(3); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if got := countFollowups(t, db, 3); got != 4 {
		t.Errorf("Expected a fresh pair after the cooldown, got %d total", got)
	}
}

func TestDispatchDeliversDueInOrder(t *testing.T) {
	sender := &fakeSender{}
	svc, db := newFollowupService(t, sender, nil)
	now := time.Now()
	svc.now = func() time.Time { return now }

	if _, err := db.Exec(
		`INSERT INTO auto_messages (user_id, message_type, scheduled_time) VALUES
		 (11, '3days', ?), (10, '1hour', ?), (12, '1hour', ?)`,
		now.Add(-time.Minute), now.Add(-time.Hour), now.Add(time.Hour),
	); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	delivered, err := svc.DispatchDue()
	if err != nil {
		t.Fatalf("DispatchDue failed: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", delivered)
	}
	if len(sender.sent) != 2 || sender.sent[0] != 10 || sender.sent[1] != 11 {
		t.Errorf("Expected oldest-first delivery to users [10 11], got %v", sender.sent)
	}

	var pending int
	if err := db.QueryRow(`SELECT COUNT(*) FROM auto_messages WHERE sent = FALSE`).Scan(&pending); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("Future follow-up must stay pending, got %d pending", pending)
	}
}

func TestDispatchMarksSentOnFailure(t *testing.T) {
	svc, db := newFollowupService(t, &fakeSender{failAll: true}, nil)
	now := time.Now()
	svc.now = func() time.Time { return now }

	if _, err := db.Exec(
		`INSERT INTO auto_messages (user_id, message_type, scheduled_time) VALUES (20, '1hour', ?)`,
		now.Add(-time.Minute),
	); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	delivered, err := svc.DispatchDue()
	if err != nil {
		t.Fatalf("DispatchDue failed: %v", err)
	}
	if delivered != 0 {
		t.Errorf("Expected 0 deliveries, got %d", delivered)
	}

	var pending int
	if err := db.QueryRow(`SELECT COUNT(*) FROM auto_messages WHERE sent = FALSE`).Scan(&pending); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if pending != 0 {
		t.Error("A failed delivery must still be marked sent")
	}
}
