package engine

import (
	"github.com/bluesky-social/tgmod/automod/keyword"
	"github.com/bluesky-social/tgmod/automod/policy"
)

type EscalationKind int

const (
	EscalateNotice EscalationKind = iota
	EscalateMute
	EscalateBan
)

func (k EscalationKind) String() string {
	switch k {
	case EscalateMute:
		return "mute"
	case EscalateBan:
		return "ban"
	default:
		return "notice"
	}
}

type EscalationSource int

const (
	SourceNone EscalationSource = iota
	SourceTerm
	SourcePolicy
)

func (s EscalationSource) String() string {
	switch s {
	case SourceTerm:
		return "term"
	case SourcePolicy:
		return "policy"
	default:
		return "none"
	}
}

// Outcome of evaluating a warning count against escalation rules. Threshold is the count which triggered the rule (zero for notices).
type Escalation struct {
	Kind      EscalationKind
	Source    EscalationSource
	Threshold int
}

// What to do with a scanned message, before any state is consulted.
type MessagePlan struct {
	// matched term; nil if the message is clean
	Term   *policy.FilterTerm
	Delete bool
	Warn   bool
}

// Matches the message against terms (in slice order) and decides the immediate actions.
//
// Deletion needs both the group policy and the term to allow it. Warning depends only on the group policy.
func PlanMessage(text string, terms []policy.FilterTerm, pol *policy.GroupPolicy) MessagePlan {
	term := keyword.MatchTerm(text, terms)
	if term == nil {
		return MessagePlan{}
	}
	return MessagePlan{
		Term:   term,
		Delete: pol.DeleteOnFilterMatch && term.DeleteMessage,
		Warn:   pol.WarnOnFilterMatch,
	}
}

// Escalation after a filter-triggered warning. Rules are checked in a fixed order and the first satisfied one wins: term mute, term ban, policy ban, policy mute.
//
// A term with both rules satisfied therefore only mutes.
func EscalateForTerm(warnings int, term *policy.FilterTerm, pol *policy.GroupPolicy) Escalation {
	if term.AutoMute && warnings >= term.MuteAfter {
		return Escalation{Kind: EscalateMute, Source: SourceTerm, Threshold: term.MuteAfter}
	}
	if term.AutoBan && warnings >= term.BanAfter {
		return Escalation{Kind: EscalateBan, Source: SourceTerm, Threshold: term.BanAfter}
	}
	return EscalateForPolicy(warnings, pol)
}

// Escalation from group thresholds alone, as used for manual warnings.
func EscalateForPolicy(warnings int, pol *policy.GroupPolicy) Escalation {
	if warnings >= pol.BanThreshold {
		return Escalation{Kind: EscalateBan, Source: SourcePolicy, Threshold: pol.BanThreshold}
	}
	if warnings >= pol.MuteThreshold {
		return Escalation{Kind: EscalateMute, Source: SourcePolicy, Threshold: pol.MuteThreshold}
	}
	return Escalation{Kind: EscalateNotice, Source: SourceNone}
}
