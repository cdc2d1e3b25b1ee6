package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventExpenseCreated  EventType = "expense.created"
	EventExpenseArchived EventType = "expense.archived"
	EventExpenseRestored EventType = "expense.restored"
)

// ExpenseEvent announces a change to a persisted expense. Consumers reload
// the expense by id; the event itself carries no amounts or text.
type ExpenseEvent struct {
	Type      EventType `json:"type"`
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(t EventType, id int64, userID string) *ExpenseEvent {
	return &ExpenseEvent{Type: t, ID: id, UserID: userID, Timestamp: time.Now().UTC()}
}

func (e *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var e ExpenseEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventExpenseCreated, EventExpenseArchived, EventExpenseRestored:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ID <= 0 {
		return nil, fmt.Errorf("invalid expense id %d", e.ID)
	}
	return &e, nil
}
