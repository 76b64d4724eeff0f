package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/countstore"
	"github.com/bluesky-social/tgmod/automod/duration"
	"github.com/bluesky-social/tgmod/automod/flagstore"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("automod")

// runtime for evaluating messages and commands against group policy, managing violation state, and recording moderation actions.
//
// All fields except Notifier are required.
type Engine struct {
	Logger   *slog.Logger
	Policies policy.Store
	Tracker  *violation.Tracker
	Audit    auditlog.Log
	Platform Platform
	Counters countstore.CountStore
	Flags    flagstore.FlagStore
	// optional out-of-band admin notifications (eg, slack)
	Notifier Notifier
	// defaults to time.Now
	Now func() time.Time
}

func (eng *Engine) now() time.Time {
	if eng.Now != nil {
		return eng.Now()
	}
	return time.Now()
}

func (eng *Engine) newEffects(groupID string, attrs ...any) *Effects {
	return &Effects{
		Logger:  eng.Logger.With("group", groupID).With(attrs...),
		GroupID: groupID,
	}
}

// Scans a group message against the filter list and applies the resulting actions.
//
// Once started, processing is not cancelled by the caller's context. Returned effects describe everything which was decided, even when the error is non-nil.
func (eng *Engine) ProcessMessage(ctx context.Context, evt MessageEvent) (eff *Effects, err error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "ProcessMessage")
	defer span.End()
	span.SetAttributes(attribute.String("group", evt.GroupID), attribute.String("user", evt.Sender.UserID))

	start := time.Now()
	eventProcessCount.WithLabelValues("message").Inc()
	defer func() {
		eventProcessDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	}()

	eff = eng.newEffects(evt.GroupID, "user", evt.Sender.UserID)

	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "group", evt.GroupID, "user", evt.Sender.UserID)
			err = fmt.Errorf("panic processing message: %v", r)
		}
		if err != nil {
			eventErrorCount.WithLabelValues("message").Inc()
			span.RecordError(err)
		}
	}()

	if evt.Text == "" || evt.GroupID == "" || evt.Sender.UserID == "" {
		return eff, nil
	}

	pol, err := eng.Policies.GetPolicy(ctx, evt.GroupID)
	if err != nil {
		return eff, fmt.Errorf("loading group policy: %w", err)
	}
	terms, err := eng.Policies.ListTerms(ctx)
	if err != nil {
		return eff, fmt.Errorf("loading filter terms: %w", err)
	}

	plan := PlanMessage(evt.Text, terms, pol)
	if plan.Term == nil {
		return eff, nil
	}
	term := plan.Term
	filterMatchCount.WithLabelValues(string(term.Category)).Inc()
	eff.Logger.Info("message matched filter term", "term", term.ID, "category", term.Category, "delete", plan.Delete, "warn", plan.Warn)

	if !plan.Delete && !plan.Warn {
		return eff, nil
	}
	if plan.Delete {
		eff.DeleteMessage(evt.MessageID)
	}

	text := evt.Text
	termID := term.ID
	detection := auditlog.Event{
		UserID:            evt.Sender.UserID,
		ActionType:        auditlog.ActionDelete,
		Details:           fmt.Sprintf("Message contained filtered word: %s", term.Term),
		PerformedBy:       auditlog.PerformedByBot,
		SourceMessageText: &text,
		FilterTermID:      &termID,
	}

	if !plan.Warn {
		// make sure the user record exists, so they can later be addressed by username
		if _, err := eng.Tracker.EnsureUser(ctx, evt.Sender.UserID, evt.Sender.Profile()); err != nil {
			return eff, err
		}
		eff.RecordEvent(detection)
		return eff, eng.persistEffects(ctx, eff)
	}

	state, err := eng.Tracker.IncrementWarning(ctx, evt.Sender.UserID, evt.Sender.Profile())
	if err != nil {
		// nothing has been committed; the deletion alone still goes ahead
		eff.Logger.Error("failed to record warning", "err", err)
		perr := eng.persistEffects(ctx, eff)
		return eff, errors.Join(fmt.Errorf("incrementing warnings: %w", err), perr)
	}
	eff.RecordEvent(detection)
	eff.AddUserFlag(evt.Sender.UserID, string(term.Category))

	esc := EscalateForTerm(state.WarningCount, term, pol)
	mention := evt.Sender.Mention()
	eff.Logger.Info("escalation decided", "warnings", state.WarningCount, "kind", esc.Kind, "source", esc.Source, "threshold", esc.Threshold)
	if esc.Kind == EscalateMute && state.IsBanned {
		eff.Logger.Info("mute escalation skipped, user already banned")
		esc.Kind = EscalateNotice
	}
	switch esc.Kind {
	case EscalateMute:
		var reason, reply string
		if esc.Source == SourceTerm {
			reason = fmt.Sprintf("Automatic mute after %d warnings for using filtered word: %s", state.WarningCount, term.Term)
			reply = fmt.Sprintf("%s has been muted for %s for using filtered word.", mention, duration.FormatMinutes(pol.DefaultMuteMinutes))
		} else {
			reason = fmt.Sprintf("Automatic mute after reaching %d warnings", esc.Threshold)
			reply = fmt.Sprintf("%s has been muted for %s after reaching %d warnings.", mention, duration.FormatMinutes(pol.DefaultMuteMinutes), esc.Threshold)
		}
		eng.mute(eff, pol, evt.Sender.UserID, mention, pol.DefaultMuteMinutes, reason, auditlog.PerformedByBot)
		eff.Reply(reply)
	case EscalateBan:
		var reason, reply string
		if esc.Source == SourceTerm {
			reason = fmt.Sprintf("Automatic ban after %d warnings for using filtered word: %s", state.WarningCount, term.Term)
			reply = fmt.Sprintf("%s has been banned for using filtered word repeatedly.", mention)
		} else {
			reason = fmt.Sprintf("Automatic ban after reaching %d warnings", esc.Threshold)
			reply = fmt.Sprintf("%s has been banned after reaching %d warnings.", mention, esc.Threshold)
		}
		eng.ban(eff, pol, evt.Sender.UserID, mention, reason, auditlog.PerformedByBot)
		eff.Reply(reply)
	default:
		eff.Reply(fmt.Sprintf("%s warning #%d: Please don't use filtered words.", mention, state.WarningCount))
	}

	return eff, eng.persistEffects(ctx, eff)
}

// enqueues a mute: tracker state, platform restriction, audit event, and (if enabled) admin notification
func (eng *Engine) mute(eff *Effects, pol *policy.GroupPolicy, userID, display string, minutes int, reason, performedBy string) {
	eff.MuteMember(userID, minutes)
	mins := minutes
	r := reason
	evt := auditlog.Event{
		UserID:              userID,
		ActionType:          auditlog.ActionMute,
		Details:             reason,
		PerformedBy:         performedBy,
		MuteDurationMinutes: &mins,
		Reason:              &r,
	}
	eff.RecordEvent(evt)
	if pol.NotifyAdmins {
		n := notificationFor(evt, display)
		n.GroupID = eff.GroupID
		eff.Notify(n)
	}
}

func (eng *Engine) ban(eff *Effects, pol *policy.GroupPolicy, userID, display string, reason, performedBy string) {
	eff.BanMember(userID)
	r := reason
	evt := auditlog.Event{
		UserID:      userID,
		ActionType:  auditlog.ActionBan,
		Details:     reason,
		PerformedBy: performedBy,
		Reason:      &r,
	}
	eff.RecordEvent(evt)
	if pol.NotifyAdmins {
		n := notificationFor(evt, display)
		n.GroupID = eff.GroupID
		eff.Notify(n)
	}
}
