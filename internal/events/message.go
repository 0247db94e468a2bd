// Package events delivers committed post changes to subscribers: websocket
// clients connected to the hub and, optionally, NATS subjects.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
)

// Message is the wire form of a domain.PostEvent.
type Message struct {
	Type       string      `json:"type"`
	Post       PostPayload `json:"post"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// PostPayload mirrors the API's post object.
type PostPayload struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Encode renders ev as JSON.
func Encode(ev domain.PostEvent) ([]byte, error) {
	msg := Message{
		Type: string(ev.Type),
		Post: PostPayload{
			ID:          ev.Post.ID,
			Title:       ev.Post.Title,
			Description: optional(ev.Post.Description),
			ImageURL:    optional(ev.Post.ImageURL),
			CreatedAt:   ev.Post.CreatedAt,
			UpdatedAt:   ev.Post.UpdatedAt,
		},
		OccurredAt: ev.OccurredAt,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
