package domain

import "time"

type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatHistory struct {
	ID          string
	URLID       string
	Description string
	Messages    []ChatMessage
	Timestamp   time.Time
}
