package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/violation"
)

const incompleteEnforcementNote = "Note: the platform rejected part of this action, so enforcement may be incomplete."

// Applies collected effects. Ordering is significant: tracker state is committed before any platform call, and is never rolled back if the platform fails.
//
// Platform failures are returned as a single *EnforcementError; other collaborator failures are joined alongside it.
func (eng *Engine) persistEffects(ctx context.Context, eff *Effects) error {
	if err := eng.persistMemberState(ctx, eff); err != nil {
		return err
	}

	var platformErrs []error
	platformErrs = append(platformErrs, eng.enforce(ctx, eff)...)

	var errs []error
	if err := eng.persistAuditEvents(ctx, eff); err != nil {
		errs = append(errs, err)
	}

	if len(platformErrs) > 0 {
		eff.enforcementFailed = true
		if eff.noteIncomplete && len(eff.Replies) > 0 {
			last := len(eff.Replies) - 1
			eff.Replies[last] = eff.Replies[last] + "\n" + incompleteEnforcementNote
		}
	}
	for _, text := range eff.Replies {
		if err := eng.Platform.SendMessage(ctx, eff.GroupID, text); err != nil {
			platformErrorCount.WithLabelValues("send_message").Inc()
			eff.Logger.Warn("failed to send group message", "err", err)
			platformErrs = append(platformErrs, fmt.Errorf("send message: %w", err))
		}
	}

	if err := eng.persistCounters(ctx, eff); err != nil {
		errs = append(errs, err)
	}
	if err := eng.persistFlags(ctx, eff); err != nil {
		errs = append(errs, err)
	}
	eng.sendNotifications(ctx, eff)

	if len(platformErrs) > 0 {
		eff.enforcementFailed = true
		errs = append([]error{&EnforcementError{Errs: platformErrs}}, errs...)
	}
	return errors.Join(errs...)
}

func (eng *Engine) persistMemberState(ctx context.Context, eff *Effects) error {
	for i, act := range eff.MemberActions {
		var err error
		switch act.Kind {
		case MemberMute:
			_, err = eng.Tracker.Mute(ctx, act.UserID, act.Minutes)
			if errors.Is(err, violation.ErrUserBanned) {
				// banned in the meantime; the ban already covers the restriction
				eff.MemberActions[i].skipped = true
				eff.Logger.Info("mute skipped for banned user", "user", act.UserID)
				continue
			}
		case MemberBan:
			_, err = eng.Tracker.Ban(ctx, act.UserID)
		case MemberUnmute:
			_, err = eng.Tracker.Unmute(ctx, act.UserID)
		case MemberUnban:
			_, err = eng.Tracker.Unban(ctx, act.UserID)
		default:
			err = fmt.Errorf("unhandled member action: %s", act.Kind)
		}
		if err != nil {
			return fmt.Errorf("updating %s state for user %s: %w", act.Kind, act.UserID, err)
		}
		memberActionCount.WithLabelValues(string(act.Kind)).Inc()
		eff.Logger.Info("member state updated", "action", act.Kind, "user", act.UserID, "minutes", act.Minutes)
	}
	return nil
}

// returns one error per failed platform call
func (eng *Engine) enforce(ctx context.Context, eff *Effects) []error {
	var errs []error
	fail := func(op string, err error) {
		platformErrorCount.WithLabelValues(op).Inc()
		eff.Logger.Error("platform enforcement failed", "op", op, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", op, err))
	}

	if eff.DeleteMessageID != "" {
		if err := eng.Platform.DeleteMessage(ctx, eff.GroupID, eff.DeleteMessageID); err != nil {
			fail("delete_message", err)
		}
	}
	for _, act := range eff.MemberActions {
		if act.skipped {
			continue
		}
		switch act.Kind {
		case MemberMute:
			until := eng.now().Add(time.Duration(act.Minutes) * time.Minute)
			if err := eng.Platform.RestrictMember(ctx, eff.GroupID, act.UserID, until); err != nil {
				fail("restrict_member", err)
			}
		case MemberBan:
			if err := eng.Platform.RemoveMember(ctx, eff.GroupID, act.UserID); err != nil {
				fail("remove_member", err)
			}
		case MemberUnmute:
			if err := eng.Platform.UnrestrictMember(ctx, eff.GroupID, act.UserID); err != nil {
				fail("unrestrict_member", err)
			}
		case MemberUnban:
			if err := eng.Platform.UnbanMember(ctx, eff.GroupID, act.UserID); err != nil {
				fail("unban_member", err)
			}
		}
	}
	return errs
}

func (eng *Engine) persistAuditEvents(ctx context.Context, eff *Effects) error {
	var errs []error
	for _, evt := range eff.AuditEvents {
		stored, err := eng.Audit.AppendEvent(ctx, evt)
		if err != nil {
			eff.Logger.Error("failed to record moderation event", "action", evt.ActionType, "user", evt.UserID, "err", err)
			errs = append(errs, fmt.Errorf("recording %s event: %w", evt.ActionType, err))
			continue
		}
		actionNewCount.WithLabelValues(string(stored.ActionType)).Inc()
		eff.Logger.Info("moderation event recorded", "id", stored.ID, "action", stored.ActionType, "user", stored.UserID, "performedBy", stored.PerformedBy)
	}
	return errors.Join(errs...)
}

func (eng *Engine) persistCounters(ctx context.Context, eff *Effects) error {
	for _, ref := range eff.CounterIncrements {
		if err := eng.Counters.Increment(ctx, ref.Name, ref.Val); err != nil {
			return fmt.Errorf("incrementing counter %s/%s: %w", ref.Name, ref.Val, err)
		}
	}
	for _, ref := range eff.CounterDistinctIncrements {
		if err := eng.Counters.IncrementDistinct(ctx, ref.Name, ref.Bucket, ref.Val); err != nil {
			return fmt.Errorf("incrementing distinct counter %s/%s: %w", ref.Name, ref.Bucket, err)
		}
	}
	return nil
}

func (eng *Engine) persistFlags(ctx context.Context, eff *Effects) error {
	byKey := make(map[string][]string)
	for _, ref := range eff.Flags {
		byKey[ref.Key] = append(byKey[ref.Key], ref.Flag)
	}
	for key, flags := range byKey {
		if err := eng.Flags.Add(ctx, key, flags); err != nil {
			return fmt.Errorf("recording flags for %s: %w", key, err)
		}
	}
	return nil
}

// failures are logged and counted, never returned
func (eng *Engine) sendNotifications(ctx context.Context, eff *Effects) {
	if eng.Notifier == nil {
		return
	}
	for _, n := range eff.Notifications {
		if err := eng.Notifier.SendNotification(ctx, n); err != nil {
			notificationErrorCount.Inc()
			eff.Logger.Warn("failed to send admin notification", "action", n.Action, "user", n.UserID, "err", err)
		}
	}
}

func notificationFor(evt auditlog.Event, display string) Notification {
	n := Notification{
		UserID:      evt.UserID,
		Display:     display,
		Action:      evt.ActionType,
		PerformedBy: evt.PerformedBy,
	}
	if evt.GroupID != nil {
		n.GroupID = *evt.GroupID
	}
	if evt.Reason != nil {
		n.Reason = *evt.Reason
	} else {
		n.Reason = evt.Details
	}
	if evt.MuteDurationMinutes != nil {
		n.Minutes = *evt.MuteDurationMinutes
	}
	return n
}
