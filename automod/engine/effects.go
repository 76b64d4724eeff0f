package engine

import (
	"log/slog"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/flagstore"
)

type MemberActionKind string

const (
	MemberMute   = MemberActionKind("mute")
	MemberBan    = MemberActionKind("ban")
	MemberUnmute = MemberActionKind("unmute")
	MemberUnban  = MemberActionKind("unban")
)

// A change to a user's standing: applied to the violation tracker first, then enforced on the platform.
type MemberAction struct {
	Kind   MemberActionKind
	UserID string
	// only for mutes
	Minutes int

	// set when the tracker refused the change, so nothing is enforced
	skipped bool
}

type CounterRef struct {
	Name string
	Val  string
}

type CounterDistinctRef struct {
	Name   string
	Bucket string
	Val    string
}

type FlagRef struct {
	Key  string
	Flag string
}

// Mutable container for all the side-effects of processing one event.
//
// Effects are collected while deciding, then persisted in bulk: tracker state, then platform calls, then audit events, replies, counters, flags, and notifications.
type Effects struct {
	Logger  *slog.Logger
	GroupID string

	// message to remove from the group, if any
	DeleteMessageID string
	MemberActions   []MemberAction
	AuditEvents     []auditlog.Event
	// messages to post to the group, in order
	Replies                   []string
	CounterIncrements         []CounterRef
	CounterDistinctIncrements []CounterDistinctRef
	Flags                     []FlagRef
	Notifications             []Notification

	// if set, the last reply gets a note when platform enforcement fails
	noteIncomplete bool
	// filled in by persistence
	enforcementFailed bool
}

func (e *Effects) DeleteMessage(messageID string) {
	e.DeleteMessageID = messageID
}

func (e *Effects) MuteMember(userID string, minutes int) {
	e.MemberActions = append(e.MemberActions, MemberAction{Kind: MemberMute, UserID: userID, Minutes: minutes})
}

func (e *Effects) BanMember(userID string) {
	e.MemberActions = append(e.MemberActions, MemberAction{Kind: MemberBan, UserID: userID})
}

func (e *Effects) UnmuteMember(userID string) {
	e.MemberActions = append(e.MemberActions, MemberAction{Kind: MemberUnmute, UserID: userID})
}

func (e *Effects) UnbanMember(userID string) {
	e.MemberActions = append(e.MemberActions, MemberAction{Kind: MemberUnban, UserID: userID})
}

// Enqueues an audit event, along with the per-group action counters derived from it.
func (e *Effects) RecordEvent(evt auditlog.Event) {
	if evt.GroupID == nil && e.GroupID != "" {
		gid := e.GroupID
		evt.GroupID = &gid
	}
	e.AuditEvents = append(e.AuditEvents, evt)
	bucket := actionCounterVal(e.GroupID, evt.ActionType)
	e.Increment(actionCounterName, bucket)
	e.IncrementDistinct(offenderCounterName, bucket, evt.UserID)
}

func (e *Effects) Reply(text string) {
	e.Replies = append(e.Replies, text)
}

func (e *Effects) Increment(name, val string) {
	e.CounterIncrements = append(e.CounterIncrements, CounterRef{Name: name, Val: val})
}

func (e *Effects) IncrementDistinct(name, bucket, val string) {
	e.CounterDistinctIncrements = append(e.CounterDistinctIncrements, CounterDistinctRef{Name: name, Bucket: bucket, Val: val})
}

// Enqueues a flag (such as an offense category) to be recorded against the user in the flagstore.
func (e *Effects) AddUserFlag(userID, flag string) {
	e.Flags = append(e.Flags, FlagRef{Key: flagstore.UserKey(userID), Flag: flag})
}

func (e *Effects) Notify(n Notification) {
	e.Notifications = append(e.Notifications, n)
}

// Whether any platform call failed during persistence.
func (e *Effects) EnforcementFailed() bool {
	return e.enforcementFailed
}

const (
	actionCounterName   = "action"
	offenderCounterName = "offender"
)

func actionCounterVal(groupID string, at auditlog.ActionType) string {
	return groupID + ":" + string(at)
}
