package engine

import (
	"context"

	"github.com/bluesky-social/tgmod/automod/auditlog"
)

// An automatic or manual mute / ban, reported out-of-band to group admins.
type Notification struct {
	GroupID     string
	UserID      string
	Display     string
	Action      auditlog.ActionType
	Reason      string
	PerformedBy string
	// only for mutes
	Minutes int
}

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendNotification(ctx context.Context, n Notification) error
}
