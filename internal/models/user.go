package models

import "time"

// User is a Telegram user known to the bot.
// Created on first interaction, refreshed on every answered request.
type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	TotalRequests int64     `json:"total_requests"`
}
