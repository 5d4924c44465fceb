package jobs

import (
	"sync"
	"testing"
	"time"

	"torgbot/internal/database"
	"torgbot/internal/models"
	"torgbot/internal/services"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []int64
}

func (r *recordingSender) SendMessage(chatID int64, text string, keyboard *models.InlineKeyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, chatID)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestDispatcherDeliversOnBoot(t *testing.T) {
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	sender := &recordingSender{}
	followups := services.NewFollowupService(db, sender,
		func(int64) bool { return false },
		time.Hour, 72*time.Hour, 14*24*time.Hour, "", "")

	// A follow-up that came due while the process was down
	if _, err := db.Exec(
		`INSERT INTO auto_messages (user_id, message_type, scheduled_time) VALUES (7, '1hour', ?)`,
		time.Now().Add(-time.Minute),
	); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	dispatcher := NewFollowupDispatcher(followups, time.Hour, time.Minute)
	dispatcher.Start()
	defer dispatcher.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if sender.count() != 1 {
		t.Fatalf("Expected the overdue follow-up delivered on the boot tick, got %d", sender.count())
	}
}

func TestPacedSenderPassesThrough(t *testing.T) {
	sender := &recordingSender{}
	paced := NewPacedSender(sender, 100)

	for i := 0; i < 3; i++ {
		if err := paced.SendMessage(int64(i), "текст", nil); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}
	if sender.count() != 3 {
		t.Errorf("Expected 3 deliveries, got %d", sender.count())
	}
}
