package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/countstore"
	"github.com/bluesky-social/tgmod/automod/duration"
	"github.com/bluesky-social/tgmod/automod/flagstore"
	"github.com/bluesky-social/tgmod/automod/keyword"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"
)

type commandFunc func(eng *Engine, ctx context.Context, evt *CommandEvent, eff *Effects) error

type command struct {
	adminOnly bool
	// verb for the generic failure reply
	verb string
	fn   commandFunc
}

var commandTable = map[string]command{
	"warn":      {adminOnly: true, verb: "warn user", fn: (*Engine).cmdWarn},
	"mute":      {adminOnly: true, verb: "mute user", fn: (*Engine).cmdMute},
	"ban":       {adminOnly: true, verb: "ban user", fn: (*Engine).cmdBan},
	"unmute":    {adminOnly: true, verb: "unmute user", fn: (*Engine).cmdUnmute},
	"unban":     {adminOnly: true, verb: "unban user", fn: (*Engine).cmdUnban},
	"addfilter": {adminOnly: true, verb: "add filter word", fn: (*Engine).cmdAddFilter},
	"delfilter": {adminOnly: true, verb: "remove filter word", fn: (*Engine).cmdDelFilter},
	"filters":   {adminOnly: true, verb: "list filter words", fn: (*Engine).cmdFilters},
	"settings":  {adminOnly: true, verb: "load settings", fn: (*Engine).cmdSettings},
	"stats":     {adminOnly: true, verb: "load statistics", fn: (*Engine).cmdStats},
	"help":      {verb: "show help", fn: (*Engine).cmdHelp},
	"status":    {verb: "load your status", fn: (*Engine).cmdStatus},
}

// Whether the engine handles this command name. Other commands are ignored.
func IsCommand(name string) bool {
	_, ok := commandTable[name]
	return ok
}

const notAdminReply = "You must be an admin to use this command."

// Handles an admin or user command.
//
// Admin commands check the sender's admin status on the platform first. Rejections, input errors (*InputError), and storage failures all get a reply in the group; the returned error says which case applied.
func (eng *Engine) ProcessCommand(ctx context.Context, evt CommandEvent) (eff *Effects, err error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "ProcessCommand")
	defer span.End()

	start := time.Now()
	eventProcessCount.WithLabelValues("command").Inc()
	defer func() {
		eventProcessDuration.WithLabelValues("command").Observe(time.Since(start).Seconds())
	}()

	eff = eng.newEffects(evt.GroupID, "command", evt.Command, "sender", evt.Sender.UserID)
	eff.noteIncomplete = true

	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod command execution exception", "err", r, "group", evt.GroupID, "command", evt.Command)
			err = fmt.Errorf("panic processing command: %v", r)
		}
		if err != nil {
			eventErrorCount.WithLabelValues("command").Inc()
			span.RecordError(err)
		}
	}()

	cmd, ok := commandTable[evt.Command]
	if !ok || evt.GroupID == "" || evt.Sender.UserID == "" {
		return eff, nil
	}

	if cmd.adminOnly {
		isAdmin, err := eng.Platform.IsAdmin(ctx, evt.GroupID, evt.Sender.UserID)
		if err != nil {
			platformErrorCount.WithLabelValues("is_admin").Inc()
			commandCount.WithLabelValues(evt.Command, "error").Inc()
			eff.Logger.Warn("admin check failed", "err", err)
			eff.Reply("Could not verify admin permissions. Please try again.")
			perr := eng.persistEffects(ctx, eff)
			return eff, errors.Join(&EnforcementError{Errs: []error{fmt.Errorf("is_admin: %w", err)}}, perr)
		}
		if !isAdmin {
			commandCount.WithLabelValues(evt.Command, "unauthorized").Inc()
			eff.Logger.Info("rejected command from non-admin")
			eff.Reply(notAdminReply)
			return eff, errors.Join(ErrNotAdmin, eng.persistEffects(ctx, eff))
		}
	}

	if err := cmd.fn(eng, ctx, &evt, eff); err != nil {
		// discard anything partially collected; handlers validate before changing state
		eff = eng.newEffects(evt.GroupID, "command", evt.Command, "sender", evt.Sender.UserID)
		var ierr *InputError
		if errors.As(err, &ierr) {
			commandCount.WithLabelValues(evt.Command, "invalid").Inc()
			eff.Reply(ierr.Message)
		} else {
			commandCount.WithLabelValues(evt.Command, "error").Inc()
			eff.Logger.Error("command failed", "err", err)
			eff.Reply(fmt.Sprintf("Failed to %s. Please try again.", cmd.verb))
		}
		return eff, errors.Join(err, eng.persistEffects(ctx, eff))
	}
	commandCount.WithLabelValues(evt.Command, "ok").Inc()
	return eff, eng.persistEffects(ctx, eff)
}

// user addressed by a command
type target struct {
	UserID  string
	Display string
	Profile violation.Profile
}

// Resolves the command target: the author of the replied-to message, else the first argument as "@username" or numeric user ID. Returns the remaining arguments.
func (eng *Engine) resolveTarget(ctx context.Context, evt *CommandEvent, usage string) (*target, []string, error) {
	if evt.ReplyTo != nil && evt.ReplyTo.UserID != "" {
		return &target{
			UserID:  evt.ReplyTo.UserID,
			Display: evt.ReplyTo.Mention(),
			Profile: evt.ReplyTo.Profile(),
		}, evt.Args, nil
	}
	if len(evt.Args) == 0 {
		return nil, nil, inputErrorf("%s", usage)
	}
	arg := evt.Args[0]
	if strings.HasPrefix(arg, "@") {
		state, err := eng.Tracker.FindByUsername(ctx, arg)
		if errors.Is(err, violation.ErrUserNotFound) {
			return nil, nil, inputErrorf("User %s not found. Reply to one of their messages instead.", arg)
		}
		if err != nil {
			return nil, nil, err
		}
		return &target{UserID: state.UserID, Display: "@" + state.Username}, evt.Args[1:], nil
	}
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		display := arg
		if state, err := eng.Tracker.Get(ctx, arg); err == nil && state.Username != "" {
			display = "@" + state.Username
		}
		return &target{UserID: arg, Display: display}, evt.Args[1:], nil
	}
	return nil, nil, inputErrorf("Please specify a valid username starting with @, a user ID, or reply to a message.")
}

func (eng *Engine) cmdWarn(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	tgt, rest, err := eng.resolveTarget(ctx, evt, "Please specify a username and reason. Example: /warn @username Spamming")
	if err != nil {
		return err
	}
	reason := strings.Join(rest, " ")
	if reason == "" {
		reason = "No reason provided"
	}
	pol, err := eng.Policies.GetPolicy(ctx, evt.GroupID)
	if err != nil {
		return err
	}

	state, err := eng.Tracker.IncrementWarning(ctx, tgt.UserID, tgt.Profile)
	if err != nil {
		return err
	}
	performedBy := evt.Sender.Identity()
	r := reason
	eff.RecordEvent(auditlog.Event{
		UserID:      tgt.UserID,
		ActionType:  auditlog.ActionWarn,
		Details:     reason,
		PerformedBy: performedBy,
		Reason:      &r,
	})

	esc := EscalateForPolicy(state.WarningCount, pol)
	if esc.Kind == EscalateMute && state.IsBanned {
		eff.Reply(fmt.Sprintf("User %s has been warned (%d warnings) for: %s\nThey are already banned, so no mute was applied.", tgt.Display, state.WarningCount, reason))
		return nil
	}
	switch esc.Kind {
	case EscalateBan:
		eng.ban(eff, pol, tgt.UserID, tgt.Display, reason, performedBy)
		eff.Reply(fmt.Sprintf("User %s has been warned (%d warnings) and banned for: %s", tgt.Display, state.WarningCount, reason))
	case EscalateMute:
		eng.mute(eff, pol, tgt.UserID, tgt.Display, pol.DefaultMuteMinutes, reason, performedBy)
		eff.Reply(fmt.Sprintf("User %s has been warned (%d warnings) and muted for %s for: %s", tgt.Display, state.WarningCount, duration.FormatMinutes(pol.DefaultMuteMinutes), reason))
	default:
		eff.Reply(fmt.Sprintf("User %s has been warned (%d warnings) for: %s", tgt.Display, state.WarningCount, reason))
	}
	return nil
}

// "/mute <target> [duration] [reason...]". The second argument only counts as a duration if it has the duration form; otherwise it starts the reason.
func (eng *Engine) cmdMute(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	tgt, rest, err := eng.resolveTarget(ctx, evt, "Please specify a username and duration. Example: /mute @username 24h")
	if err != nil {
		return err
	}
	minutes := duration.DefaultMinutes
	if len(rest) > 0 && duration.IsToken(rest[0]) {
		minutes = duration.ParseMinutes(rest[0])
		rest = rest[1:]
	}
	if minutes <= 0 {
		return inputErrorf("Please specify a valid duration (e.g., 1h, 30m, 2d)")
	}
	reason := strings.Join(rest, " ")
	if reason == "" {
		reason = "Manual mute by admin"
	}
	pol, err := eng.Policies.GetPolicy(ctx, evt.GroupID)
	if err != nil {
		return err
	}
	state, err := eng.Tracker.EnsureUser(ctx, tgt.UserID, tgt.Profile)
	if err != nil {
		return err
	}
	if state.IsBanned {
		eff.Reply(fmt.Sprintf("User %s is already banned.", tgt.Display))
		return nil
	}

	eng.mute(eff, pol, tgt.UserID, tgt.Display, minutes, reason, evt.Sender.Identity())
	eff.Reply(fmt.Sprintf("User %s has been muted for %s.", tgt.Display, duration.FormatMinutes(minutes)))
	return nil
}

func (eng *Engine) cmdBan(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	tgt, rest, err := eng.resolveTarget(ctx, evt, "Please specify a username and reason. Example: /ban @username Repeated violations")
	if err != nil {
		return err
	}
	reason := strings.Join(rest, " ")
	if reason == "" {
		reason = "No reason provided"
	}
	pol, err := eng.Policies.GetPolicy(ctx, evt.GroupID)
	if err != nil {
		return err
	}
	if _, err := eng.Tracker.EnsureUser(ctx, tgt.UserID, tgt.Profile); err != nil {
		return err
	}

	eng.ban(eff, pol, tgt.UserID, tgt.Display, reason, evt.Sender.Identity())
	eff.Reply(fmt.Sprintf("User %s has been banned for: %s", tgt.Display, reason))
	return nil
}

// Lifts are applied unconditionally, even if the stored state says the user is not muted.
func (eng *Engine) cmdUnmute(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	tgt, _, err := eng.resolveTarget(ctx, evt, "Please specify a username. Example: /unmute @username")
	if err != nil {
		return err
	}
	eff.UnmuteMember(tgt.UserID)
	eff.Logger.Info("unmute requested", "target", tgt.UserID, "performedBy", evt.Sender.Identity())
	eff.Reply(fmt.Sprintf("User %s has been unmuted.", tgt.Display))
	return nil
}

func (eng *Engine) cmdUnban(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	tgt, _, err := eng.resolveTarget(ctx, evt, "Please specify a username. Example: /unban @username")
	if err != nil {
		return err
	}
	eff.UnbanMember(tgt.UserID)
	eff.Logger.Info("unban requested", "target", tgt.UserID, "performedBy", evt.Sender.Identity())
	eff.Reply(fmt.Sprintf("User %s has been unbanned.", tgt.Display))
	return nil
}

func (eng *Engine) cmdAddFilter(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	word := keyword.NormalizeTerm(strings.Join(evt.Args, " "))
	if word == "" {
		return inputErrorf("Please specify a word to filter. Example: /addfilter badword")
	}
	term, err := eng.Policies.CreateTerm(ctx, policy.NewCustomTerm(word))
	if err != nil {
		return err
	}
	eff.Logger.Info("filter term added", "term", term.ID, "performedBy", evt.Sender.Identity())
	eff.Reply(fmt.Sprintf("Added \"%s\" to the filter list. Messages containing this word will be deleted and users will be warned.", term.Term))
	return nil
}

// Accepts either a term ID (as shown by /filters) or the term text; text removes the oldest matching term.
func (eng *Engine) cmdDelFilter(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	arg := keyword.NormalizeTerm(strings.Join(evt.Args, " "))
	if arg == "" {
		return inputErrorf("Please specify a filter ID or word. Example: /delfilter 3")
	}
	id, perr := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if perr != nil {
		terms, err := eng.Policies.ListTerms(ctx)
		if err != nil {
			return err
		}
		norm := keyword.NormalizeText(arg)
		for _, t := range terms {
			if keyword.NormalizeText(t.Term) == norm {
				id = t.ID
				break
			}
		}
		if id == 0 {
			return inputErrorf("\"%s\" is not in the filter list.", arg)
		}
	}
	term, err := eng.Policies.GetTerm(ctx, id)
	if errors.Is(err, policy.ErrTermNotFound) {
		return inputErrorf("No filter with ID %d.", id)
	} else if err != nil {
		return err
	}
	if err := eng.Policies.DeleteTerm(ctx, id); err != nil {
		if errors.Is(err, policy.ErrTermNotFound) {
			return inputErrorf("No filter with ID %d.", id)
		}
		return err
	}
	eff.Logger.Info("filter term removed", "term", id, "performedBy", evt.Sender.Identity())
	eff.Reply(fmt.Sprintf("Removed \"%s\" from the filter list.", term.Term))
	return nil
}

func (eng *Engine) cmdFilters(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	terms, err := eng.Policies.ListTerms(ctx)
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		eff.Reply("No filtered words configured.")
		return nil
	}
	var b strings.Builder
	b.WriteString("Filtered words:\n")
	for _, t := range terms {
		fmt.Fprintf(&b, "#%d %s (%s)%s\n", t.ID, t.Term, t.Category, termFlags(&t))
	}
	eff.Reply(strings.TrimRight(b.String(), "\n"))
	return nil
}

func termFlags(t *policy.FilterTerm) string {
	var flags []string
	if t.DeleteMessage {
		flags = append(flags, "delete")
	}
	if t.WarnUser {
		flags = append(flags, "warn")
	}
	if t.AutoMute {
		flags = append(flags, fmt.Sprintf("mute after %d", t.MuteAfter))
	}
	if t.AutoBan {
		flags = append(flags, fmt.Sprintf("ban after %d", t.BanAfter))
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (eng *Engine) cmdSettings(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	pol, err := eng.Policies.GetPolicy(ctx, evt.GroupID)
	if err != nil {
		return err
	}
	eff.Reply(FormatPolicy(pol))
	return nil
}

// Human-readable policy summary, as shown by /settings.
func FormatPolicy(pol *policy.GroupPolicy) string {
	var b strings.Builder
	b.WriteString("Current settings:\n")
	fmt.Fprintf(&b, "Default mute duration: %s\n", duration.FormatMinutes(pol.DefaultMuteMinutes))
	fmt.Fprintf(&b, "Warn threshold: %d\n", pol.WarnThreshold)
	fmt.Fprintf(&b, "Mute threshold: %d\n", pol.MuteThreshold)
	fmt.Fprintf(&b, "Ban threshold: %d\n", pol.BanThreshold)
	fmt.Fprintf(&b, "Delete on filter match: %s\n", yesNo(pol.DeleteOnFilterMatch))
	fmt.Fprintf(&b, "Warn on filter match: %s\n", yesNo(pol.WarnOnFilterMatch))
	fmt.Fprintf(&b, "Notify admins: %s", yesNo(pol.NotifyAdmins))
	if pol.WelcomeMessage != nil {
		fmt.Fprintf(&b, "\nWelcome message: %s", *pol.WelcomeMessage)
	}
	return b.String()
}

var statsLabels = []struct {
	action auditlog.ActionType
	label  string
}{
	{auditlog.ActionDelete, "Deleted messages"},
	{auditlog.ActionWarn, "Warnings"},
	{auditlog.ActionMute, "Mutes"},
	{auditlog.ActionBan, "Bans"},
}

func (eng *Engine) cmdStats(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	var b strings.Builder
	b.WriteString("Moderation statistics (today / this week / total):\n")
	for _, sl := range statsLabels {
		bucket := actionCounterVal(evt.GroupID, sl.action)
		counts := make([]int, 0, 3)
		for _, period := range []string{countstore.PeriodDay, countstore.PeriodWeek, countstore.PeriodTotal} {
			c, err := eng.Counters.GetCount(ctx, actionCounterName, bucket, period)
			if err != nil {
				return err
			}
			counts = append(counts, c)
		}
		users, err := eng.Counters.GetCountDistinct(ctx, offenderCounterName, bucket, countstore.PeriodWeek)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s: %d / %d / %d (%d users this week)\n", sl.label, counts[0], counts[1], counts[2], users)
	}
	eff.Reply(strings.TrimRight(b.String(), "\n"))
	return nil
}

const helpText = `Moderation Bot Commands:

Admin Commands:
/addfilter [word] - Add a word to filter list
/delfilter [id or word] - Remove a word from the filter list
/filters - List filtered words
/warn @username [reason] - Issue a warning to a user
/mute @username [duration] [reason] - Mute a user (e.g., 1h, 30m, 2d)
/ban @username [reason] - Ban a user from the group
/unmute @username - Unmute a previously muted user
/unban @username - Unban a previously banned user
/settings - View current bot settings
/stats - View moderation statistics

Targets may also be given by replying to one of the user's messages.

User Commands:
/help - Show this help message
/status - Check your warning status`

func (eng *Engine) cmdHelp(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	eff.Reply(helpText)
	return nil
}

func (eng *Engine) cmdStatus(ctx context.Context, evt *CommandEvent, eff *Effects) error {
	state, err := eng.Tracker.Get(ctx, evt.Sender.UserID)
	if err != nil {
		return err
	}
	categories, err := eng.Flags.Get(ctx, flagstore.UserKey(evt.Sender.UserID))
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d warnings", evt.Sender.Mention(), state.WarningCount)
	if state.IsBanned {
		b.WriteString("\nStatus: banned")
	} else if state.IsMuted && state.MuteExpiresAt != nil {
		fmt.Fprintf(&b, "\nStatus: muted until %s", state.MuteExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	} else if state.IsMuted {
		b.WriteString("\nStatus: muted")
	} else {
		b.WriteString("\nStatus: in good standing")
	}
	if len(categories) > 0 {
		fmt.Fprintf(&b, "\nOffense categories: %s", strings.Join(categories, ", "))
	}
	eff.Reply(b.String())
	return nil
}
