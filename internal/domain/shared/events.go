package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types emitted by the progression pipeline.
const (
	EventPointsChanged    EventType = "points.changed"
	EventLevelEarned      EventType = "level.earned"
	EventLevelRevoked     EventType = "level.revoked"
	EventBadgeGranted     EventType = "badge.granted"
	EventBadgeRevoked     EventType = "badge.revoked"
	EventRankingRefreshed EventType = "ranking.refreshed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]any
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsChangedEvent is emitted after a point transaction is committed.
type PointsChangedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount"`
	NewTotal      int64  `json:"new_total"`
	Reason        string `json:"reason"`
}

// Payload implements Event interface.
func (e PointsChangedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":     e.StudentID,
		"transaction_id": e.TransactionID,
		"amount":         e.Amount,
		"new_total":      e.NewTotal,
		"reason":         e.Reason,
	}
}

// NewPointsChangedEvent creates a new PointsChangedEvent.
func NewPointsChangedEvent(studentID, txID string, amount, newTotal int64, reason string, at time.Time) PointsChangedEvent {
	return PointsChangedEvent{
		BaseEvent:     NewBaseEvent(EventPointsChanged, studentID, at),
		StudentID:     studentID,
		TransactionID: txID,
		Amount:        amount,
		NewTotal:      newTotal,
		Reason:        reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Membership Events
// ═══════════════════════════════════════════════════════════════════════════

// LevelChangedEvent is emitted when a student gains or loses a level membership.
type LevelChangedEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	LevelID        string `json:"level_id"`
	LevelName      string `json:"level_name"`
	PointsRequired int64  `json:"points_required"`
	Source         Source `json:"source"`
}

// Payload implements Event interface.
func (e LevelChangedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":      e.StudentID,
		"level_id":        e.LevelID,
		"level_name":      e.LevelName,
		"points_required": e.PointsRequired,
		"source":          string(e.Source),
	}
}

// NewLevelEarnedEvent creates a level.earned event.
func NewLevelEarnedEvent(studentID, levelID, levelName string, pointsRequired int64, source Source, at time.Time) LevelChangedEvent {
	return newLevelChangedEvent(EventLevelEarned, studentID, levelID, levelName, pointsRequired, source, at)
}

// NewLevelRevokedEvent creates a level.revoked event. Only threshold
// recalculation removes levels.
func NewLevelRevokedEvent(studentID, levelID, levelName string, pointsRequired int64, at time.Time) LevelChangedEvent {
	return newLevelChangedEvent(EventLevelRevoked, studentID, levelID, levelName, pointsRequired, SourceAuto, at)
}

func newLevelChangedEvent(t EventType, studentID, levelID, levelName string, pointsRequired int64, source Source, at time.Time) LevelChangedEvent {
	return LevelChangedEvent{
		BaseEvent:      NewBaseEvent(t, studentID, at),
		StudentID:      studentID,
		LevelID:        levelID,
		LevelName:      levelName,
		PointsRequired: pointsRequired,
		Source:         source,
	}
}

// BadgeChangedEvent is emitted when a badge membership is granted or revoked.
type BadgeChangedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	BadgeID   string `json:"badge_id"`
	BadgeName string `json:"badge_name"`
	Source    Source `json:"source"`
	Reason    string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e BadgeChangedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id": e.StudentID,
		"badge_id":   e.BadgeID,
		"badge_name": e.BadgeName,
		"source":     string(e.Source),
		"reason":     e.Reason,
	}
}

// NewBadgeGrantedEvent creates a badge.granted event.
func NewBadgeGrantedEvent(studentID, badgeID, badgeName string, source Source, reason string, at time.Time) BadgeChangedEvent {
	return BadgeChangedEvent{
		BaseEvent: NewBaseEvent(EventBadgeGranted, studentID, at),
		StudentID: studentID,
		BadgeID:   badgeID,
		BadgeName: badgeName,
		Source:    source,
		Reason:    reason,
	}
}

// NewBadgeRevokedEvent creates a badge.revoked event.
func NewBadgeRevokedEvent(studentID, badgeID, badgeName string, source Source, reason string, at time.Time) BadgeChangedEvent {
	e := NewBadgeGrantedEvent(studentID, badgeID, badgeName, source, reason, at)
	e.Type = EventBadgeRevoked
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ranking Events
// ═══════════════════════════════════════════════════════════════════════════

// RankingRefreshedEvent is emitted when a student's ranking entry is rewritten.
type RankingRefreshedEvent struct {
	BaseEvent
	StudentID   string `json:"student_id"`
	OldPosition int    `json:"old_position"` // 0 when there was no entry
	NewPosition int    `json:"new_position"`
	TotalPoints int64  `json:"total_points"`
}

// Payload implements Event interface.
func (e RankingRefreshedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":   e.StudentID,
		"old_position": e.OldPosition,
		"new_position": e.NewPosition,
		"total_points": e.TotalPoints,
	}
}

// NewRankingRefreshedEvent creates a new RankingRefreshedEvent.
func NewRankingRefreshedEvent(studentID string, oldPos, newPos int, total int64, at time.Time) RankingRefreshedEvent {
	return RankingRefreshedEvent{
		BaseEvent:   NewBaseEvent(EventRankingRefreshed, studentID, at),
		StudentID:   studentID,
		OldPosition: oldPos,
		NewPosition: newPos,
		TotalPoints: total,
	}
}

// Moved reports whether the position changed.
func (e RankingRefreshedEvent) Moved() bool {
	return e.OldPosition != e.NewPosition
}

// ═══════════════════════════════════════════════════════════════════════════
// Publishing contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
