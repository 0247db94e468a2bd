package domain

import "time"

// EventType names a post change.
type EventType string

const (
	EventPostCreated EventType = "post.created"
	EventPostUpdated EventType = "post.updated"
	EventPostDeleted EventType = "post.deleted"
)

// PostEvent is emitted once a change has been committed to the repository.
type PostEvent struct {
	Type       EventType
	Post       Post
	OccurredAt time.Time
}
