package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = Actor{UserID: "9000", Username: "moddy"}

func cmdEvent(sender Actor, text string) CommandEvent {
	name, args, ok := ParseCommand(text)
	if !ok {
		panic("not a command: " + text)
	}
	return CommandEvent{
		GroupID:   testGroup,
		MessageID: "1",
		Sender:    sender,
		Command:   name,
		Args:      args,
	}
}

func adminFixture(t *testing.T) (*Engine, *MockPlatform) {
	eng, platform := EngineTestFixture()
	platform.Admins[admin.UserID] = true
	// make alice known by username
	_, err := eng.Tracker.EnsureUser(context.Background(), alice.UserID, alice.Profile())
	require.NoError(t, err)
	return eng, platform
}

func TestCommandRequiresAdmin(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	for _, text := range []string{"/warn @alice spam", "/ban @alice", "/mute @alice 1h", "/addfilter foo", "/settings"} {
		platform.Reset()
		eff, err := eng.ProcessCommand(ctx, cmdEvent(alice, text))
		assert.ErrorIs(err, ErrNotAdmin, text)
		assert.Empty(eff.AuditEvents, text)
		assert.Empty(eff.MemberActions, text)
		assert.Equal([]string{"You must be an admin to use this command."}, platform.Sent(), text)
	}

	state, err := eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(0, state.WarningCount)
	assert.False(state.IsBanned)
	terms, err := eng.Policies.ListTerms(ctx)
	require.NoError(t, err)
	assert.Empty(terms)

	events, err := eng.Audit.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(events)

	// admin status is checked live, on every command
	platform.Admins[alice.UserID] = true
	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(alice, "/settings"))
	assert.NoError(err)
	assert.Equal(1, len(platform.CallsFor("is_admin")))
}

func TestCommandAdminCheckFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)
	platform.Failures["is_admin"] = errors.New("api unavailable")

	eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/ban @alice"))
	var enfErr *EnforcementError
	assert.True(errors.As(err, &enfErr))
	assert.Empty(eff.MemberActions)
	assert.Empty(platform.CallsFor("remove_member"))
}

func TestCommandWarn(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	_, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/warn @alice posting links"))
	require.NoError(t, err)
	assert.Equal([]string{"User @alice has been warned (1 warnings) for: posting links"}, platform.Sent())

	events, err := eng.Audit.ListEventsByUser(ctx, alice.UserID, 10)
	require.NoError(t, err)
	if assert.Equal(1, len(events)) {
		assert.Equal(auditlog.ActionWarn, events[0].ActionType)
		assert.Equal("moddy", events[0].PerformedBy)
		assert.Equal("posting links", *events[0].Reason)
	}

	// escalate by group thresholds only
	four := 4
	_, err = eng.Policies.UpdatePolicy(ctx, testGroup, policy.PolicyUpdate{MuteThreshold: &four})
	require.NoError(t, err)
	_, err = eng.Tracker.IncrementWarning(ctx, alice.UserID, violation.Profile{})
	require.NoError(t, err)
	_, err = eng.Tracker.IncrementWarning(ctx, alice.UserID, violation.Profile{})
	require.NoError(t, err)

	platform.Reset()
	eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/warn @alice"))
	require.NoError(t, err)
	assert.Equal([]string{"User @alice has been warned (4 warnings) and muted for 1 days for: No reason provided"}, platform.Sent())
	assert.Equal(1, len(platform.CallsFor("restrict_member")))
	assert.Equal(2, len(eff.AuditEvents))
	assert.Equal(auditlog.ActionMute, eff.AuditEvents[1].ActionType)
}

func TestCommandWarnByReply(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	bob := Actor{UserID: "3003", FirstName: "Bob"}
	evt := cmdEvent(admin, "/warn be nice")
	evt.ReplyTo = &bob
	_, err := eng.ProcessCommand(ctx, evt)
	require.NoError(t, err)
	assert.Equal([]string{"User @3003 has been warned (1 warnings) for: be nice"}, platform.Sent())

	state, err := eng.Tracker.Get(ctx, bob.UserID)
	require.NoError(t, err)
	assert.Equal(1, state.WarningCount)
	assert.Equal("Bob", state.FirstName)
}

func TestCommandInputErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	fixtures := []struct {
		text  string
		reply string
	}{
		{text: "/warn", reply: "Please specify a username and reason. Example: /warn @username Spamming"},
		{text: "/warn @nobody rude", reply: "User @nobody not found. Reply to one of their messages instead."},
		{text: "/ban alice", reply: "Please specify a valid username starting with @, a user ID, or reply to a message."},
		{text: "/mute @alice 0m", reply: "Please specify a valid duration (e.g., 1h, 30m, 2d)"},
		{text: "/addfilter", reply: "Please specify a word to filter. Example: /addfilter badword"},
		{text: "/delfilter 42", reply: "No filter with ID 42."},
		{text: "/delfilter nothing", reply: "\"nothing\" is not in the filter list."},
	}
	for _, fix := range fixtures {
		platform.Reset()
		eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, fix.text))
		var ierr *InputError
		assert.True(errors.As(err, &ierr), fix.text)
		assert.Empty(eff.MemberActions, fix.text)
		assert.Equal([]string{fix.reply}, platform.Sent(), fix.text)
	}

	state, err := eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Equal(0, state.WarningCount)
	assert.False(state.IsMuted)
}

func TestCommandMute(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/mute @alice 90m flooding the chat"))
	require.NoError(t, err)
	assert.Equal([]string{"User @alice has been muted for 1 hours."}, platform.Sent())
	if assert.Equal(1, len(eff.AuditEvents)) {
		assert.Equal(90, *eff.AuditEvents[0].MuteDurationMinutes)
		assert.Equal("flooding the chat", *eff.AuditEvents[0].Reason)
	}

	// no duration: default length, and the rest is the reason
	platform.Reset()
	eff, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/mute 1001 calm down"))
	require.NoError(t, err)
	assert.Equal(1440, eff.MemberActions[0].Minutes)
	assert.Equal("calm down", *eff.AuditEvents[0].Reason)

	platform.Reset()
	eff, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/mute @alice"))
	require.NoError(t, err)
	assert.Equal("Manual mute by admin", eff.AuditEvents[0].Details)

	state, err := eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.True(state.IsMuted)
	// manual actions never touch warnings
	assert.Equal(0, state.WarningCount)

	platform.Reset()
	eff, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/unmute @alice"))
	require.NoError(t, err)
	assert.Empty(eff.AuditEvents)
	assert.Equal(1, len(platform.CallsFor("unrestrict_member")))
	state, err = eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.False(state.IsMuted)
	assert.Nil(state.MuteExpiresAt)
}

func TestCommandBanAndUnban(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	_, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/mute @alice 1h"))
	require.NoError(t, err)
	platform.Reset()

	eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/ban @alice repeated violations"))
	require.NoError(t, err)
	assert.Equal([]string{"User @alice has been banned for: repeated violations"}, platform.Sent())
	assert.Equal(auditlog.ActionBan, eff.AuditEvents[0].ActionType)
	assert.Equal(1, len(platform.CallsFor("remove_member")))

	state, err := eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.True(state.IsBanned)
	assert.False(state.IsMuted)

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/unban @alice"))
	require.NoError(t, err)
	assert.Equal(1, len(platform.CallsFor("unban_member")))
	assert.Equal([]string{"User @alice has been unbanned."}, platform.Sent())
	state, err = eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.False(state.IsBanned)
}

func TestCommandEnforcementNote(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)
	platform.Failures["remove_member"] = errors.New("user is an administrator")

	_, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/ban @alice"))
	var enfErr *EnforcementError
	assert.True(errors.As(err, &enfErr))

	sent := platform.Sent()
	if assert.Equal(1, len(sent)) {
		assert.True(strings.HasPrefix(sent[0], "User @alice has been banned for: No reason provided"))
		assert.Contains(sent[0], "enforcement may be incomplete")
	}
	state, err := eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.True(state.IsBanned)
}

func TestCommandFilters(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	_, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/addfilter  Crypto Pump "))
	require.NoError(t, err)
	assert.Equal([]string{"Added \"Crypto Pump\" to the filter list. Messages containing this word will be deleted and users will be warned."}, platform.Sent())

	terms, err := eng.Policies.ListTerms(ctx)
	require.NoError(t, err)
	if assert.Equal(1, len(terms)) {
		assert.Equal(policy.CategoryCustom, terms[0].Category)
		assert.True(terms[0].DeleteMessage)
		assert.True(terms[0].WarnUser)
		assert.False(terms[0].AutoMute)
		assert.Equal(3, terms[0].MuteAfter)
		assert.Equal(5, terms[0].BanAfter)
	}

	// a newly added term applies to the very next message
	platform.Reset()
	eff, err := eng.ProcessMessage(ctx, msgEvent(50, alice, "join the CRYPTO PUMP today"))
	require.NoError(t, err)
	assert.Equal("50", eff.DeleteMessageID)
	assert.Equal([]string{"@alice warning #1: Please don't use filtered words."}, platform.Sent())

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/filters"))
	require.NoError(t, err)
	assert.Equal([]string{"Filtered words:\n#1 Crypto Pump (custom) [delete, warn]"}, platform.Sent())

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/delfilter crypto pump"))
	require.NoError(t, err)
	assert.Equal([]string{"Removed \"Crypto Pump\" from the filter list."}, platform.Sent())

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/filters"))
	require.NoError(t, err)
	assert.Equal([]string{"No filtered words configured."}, platform.Sent())
}

func TestCommandStatusAndStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)
	MustAddTerms(eng, plainTerm("badword"))

	_, err := eng.ProcessMessage(ctx, msgEvent(1, alice, "badword"))
	require.NoError(t, err)
	_, err = eng.ProcessMessage(ctx, msgEvent(2, alice, "badword"))
	require.NoError(t, err)

	// status and help are open to everyone
	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(alice, "/status"))
	require.NoError(t, err)
	assert.Equal([]string{"@alice: 2 warnings\nStatus: in good standing\nOffense categories: profanity"}, platform.Sent())
	assert.Empty(platform.CallsFor("is_admin"))

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(alice, "/help@ModBot"))
	require.NoError(t, err)
	assert.Contains(platform.Sent()[0], "/addfilter [word]")

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/stats"))
	require.NoError(t, err)
	sent := platform.Sent()
	if assert.Equal(1, len(sent)) {
		assert.Contains(sent[0], "Deleted messages: 2 / 2 / 2 (1 users this week)")
		assert.Contains(sent[0], "Bans: 0 / 0 / 0 (0 users this week)")
	}

	platform.Reset()
	_, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/settings"))
	require.NoError(t, err)
	assert.Contains(platform.Sent()[0], "Ban threshold: 8")
}

func TestUnknownCommandIgnored(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/start"))
	assert.NoError(err)
	assert.Empty(eff.Replies)
	assert.Empty(platform.Calls)
	assert.False(IsCommand("start"))
	assert.True(IsCommand("warn"))
}

func TestCommandMuteBannedUser(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, platform := adminFixture(t)

	one := 1
	_, err := eng.Policies.UpdatePolicy(ctx, testGroup, policy.PolicyUpdate{MuteThreshold: &one})
	require.NoError(t, err)
	_, err = eng.Tracker.Ban(ctx, alice.UserID)
	require.NoError(t, err)

	// the warning lands on the mute threshold, but a banned user is not muted as well
	eff, err := eng.ProcessCommand(ctx, cmdEvent(admin, "/warn @alice spamming"))
	require.NoError(t, err)
	assert.Equal([]string{"User @alice has been warned (1 warnings) for: spamming\nThey are already banned, so no mute was applied."}, platform.Sent())
	assert.Empty(eff.MemberActions)
	assert.Empty(platform.CallsFor("restrict_member"))
	if assert.Equal(1, len(eff.AuditEvents)) {
		assert.Equal(auditlog.ActionWarn, eff.AuditEvents[0].ActionType)
	}

	platform.Reset()
	eff, err = eng.ProcessCommand(ctx, cmdEvent(admin, "/mute @alice 1h"))
	require.NoError(t, err)
	assert.Equal([]string{"User @alice is already banned."}, platform.Sent())
	assert.Empty(eff.MemberActions)
	assert.Empty(eff.AuditEvents)
	assert.Empty(platform.CallsFor("restrict_member"))

	state, err := eng.Tracker.Get(ctx, alice.UserID)
	require.NoError(t, err)
	assert.True(state.IsBanned)
	assert.False(state.IsMuted)
	assert.Nil(state.MuteExpiresAt)
	assert.Equal(1, state.WarningCount)
}
