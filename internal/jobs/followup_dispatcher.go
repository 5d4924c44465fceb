package jobs

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"torgbot/internal/models"
	"torgbot/internal/services"
)

// FollowupDispatcher drives the periodic delivery of due follow-ups.
// A tick that fails (usually a database hiccup) shortens the next wait to the
// recovery interval so a transient fault does not delay deliveries by a full
// dispatch period.
type FollowupDispatcher struct {
	followups *services.FollowupService

	interval         time.Duration
	recoveryInterval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewFollowupDispatcher(followups *services.FollowupService, interval, recoveryInterval time.Duration) *FollowupDispatcher {
	return &FollowupDispatcher{
		followups:        followups,
		interval:         interval,
		recoveryInterval: recoveryInterval,
		stopChan:         make(chan struct{}),
		doneChan:         make(chan struct{}),
	}
}

// Start launches the dispatch loop in its own goroutine
func (d *FollowupDispatcher) Start() {
	go d.run()
	log.Printf("📬 [DISPATCHER] Started (every %s, recovery %s)", d.interval, d.recoveryInterval)
}

// Stop shuts the loop down and waits for the current tick to finish
func (d *FollowupDispatcher) Stop() {
	close(d.stopChan)
	<-d.doneChan
	log.Println("📬 [DISPATCHER] Stopped")
}

func (d *FollowupDispatcher) run() {
	defer close(d.doneChan)

	// First tick right away so messages due during downtime go out on boot
	wait := time.Duration(0)

	for {
		timer := time.NewTimer(wait)
		select {
		case <-d.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := d.followups.DispatchDue(); err != nil {
			log.Printf("⚠️  [DISPATCHER] Dispatch tick failed: %v", err)
			wait = d.recoveryInterval
		} else {
			wait = d.interval
		}
	}
}

// PacedSender wraps a message sender with a global send-rate cap. Telegram
// allows roughly 30 messages per second bot-wide; a big backlog of due
// follow-ups must not trip that.
type PacedSender struct {
	inner   services.MessageSender
	limiter *rate.Limiter
}

func NewPacedSender(inner services.MessageSender, perSecond float64) *PacedSender {
	return &PacedSender{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (p *PacedSender) SendMessage(chatID int64, text string, keyboard *models.InlineKeyboard) error {
	if err := p.limiter.Wait(context.Background()); err != nil {
		return err
	}
	return p.inner.SendMessage(chatID, text, keyboard)
}
