// Append-only record of moderation actions.
package auditlog

import (
	"context"
	"fmt"
	"time"
)

type ActionType string

const (
	ActionDelete = ActionType("delete")
	ActionWarn   = ActionType("warn")
	ActionMute   = ActionType("mute")
	ActionBan    = ActionType("ban")
)

var AllActionTypes = []ActionType{ActionDelete, ActionWarn, ActionMute, ActionBan}

func ParseActionType(raw string) (ActionType, error) {
	for _, at := range AllActionTypes {
		if string(at) == raw {
			return at, nil
		}
	}
	return "", fmt.Errorf("unknown action type: %q", raw)
}

// PerformedBy value for automatic actions.
const PerformedByBot = "bot"

type Event struct {
	// assigned by the log
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	UserID      string     `json:"userId"`
	ActionType  ActionType `json:"actionType"`
	Details     string     `json:"details"`
	PerformedBy string     `json:"performedBy"`

	SourceMessageText   *string `json:"sourceMessageText,omitempty"`
	FilterTermID        *uint64 `json:"filterTermId,omitempty"`
	MuteDurationMinutes *int    `json:"muteDurationMinutes,omitempty"`
	Reason              *string `json:"reason,omitempty"`
	GroupID             *string `json:"groupId,omitempty"`
}

type Log interface {
	// Assigns ID and Timestamp (when zero) and returns the stored event.
	AppendEvent(ctx context.Context, evt Event) (*Event, error)
	// Newest first.
	ListEvents(ctx context.Context, limit, offset int) ([]Event, error)
	// Newest first.
	ListEventsByUser(ctx context.Context, userID string, limit int) ([]Event, error)
}
