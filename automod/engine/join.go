package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// One or more users joined a group.
type JoinEvent struct {
	GroupID string
	Members []Actor
}

// Registers new members with the tracker, so they can be addressed by username, and posts the group welcome message if one is configured.
func (eng *Engine) ProcessJoin(ctx context.Context, evt JoinEvent) (eff *Effects, err error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "ProcessJoin")
	defer span.End()

	start := time.Now()
	eventProcessCount.WithLabelValues("join").Inc()
	defer func() {
		eventProcessDuration.WithLabelValues("join").Observe(time.Since(start).Seconds())
	}()

	eff = eng.newEffects(evt.GroupID)
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod event execution exception", "err", r, "group", evt.GroupID)
			err = fmt.Errorf("panic processing join: %v", r)
		}
		if err != nil {
			eventErrorCount.WithLabelValues("join").Inc()
			span.RecordError(err)
		}
	}()

	if evt.GroupID == "" || len(evt.Members) == 0 {
		return eff, nil
	}

	var errs []error
	var mentions []string
	for _, m := range evt.Members {
		if m.UserID == "" {
			continue
		}
		if _, err := eng.Tracker.EnsureUser(ctx, m.UserID, m.Profile()); err != nil {
			eff.Logger.Error("failed to register new member", "user", m.UserID, "err", err)
			errs = append(errs, err)
		}
		mentions = append(mentions, m.Mention())
	}

	pol, err := eng.Policies.GetPolicy(ctx, evt.GroupID)
	if err != nil {
		return eff, errors.Join(append(errs, fmt.Errorf("loading group policy: %w", err))...)
	}
	if pol.WelcomeMessage != nil && len(mentions) > 0 {
		eff.Reply(fmt.Sprintf("%s %s", strings.Join(mentions, " "), *pol.WelcomeMessage))
	}

	if err := eng.persistEffects(ctx, eff); err != nil {
		errs = append(errs, err)
	}
	return eff, errors.Join(errs...)
}
