package engine

import (
	"testing"

	"github.com/bluesky-social/tgmod/automod/policy"

	"github.com/stretchr/testify/assert"
)

func TestPlanMessage(t *testing.T) {
	assert := assert.New(t)

	terms := []policy.FilterTerm{
		{ID: 1, Term: "spam", DeleteMessage: true},
		{ID: 2, Term: "meh", DeleteMessage: false},
	}
	pol := policy.DefaultPolicy("g")

	plan := PlanMessage("SPAMless offers", terms, &pol)
	if assert.NotNil(plan.Term) {
		assert.Equal(uint64(1), plan.Term.ID)
	}
	assert.True(plan.Delete)
	assert.True(plan.Warn)

	// term opts out of deletion
	plan = PlanMessage("meh", terms, &pol)
	assert.False(plan.Delete)
	assert.True(plan.Warn)

	// group opts out of both
	pol.DeleteOnFilterMatch = false
	pol.WarnOnFilterMatch = false
	plan = PlanMessage("spam", terms, &pol)
	assert.NotNil(plan.Term)
	assert.False(plan.Delete)
	assert.False(plan.Warn)

	plan = PlanMessage("hello", terms, &pol)
	assert.Nil(plan.Term)
}

func TestEscalateForTerm(t *testing.T) {
	assert := assert.New(t)
	pol := policy.DefaultPolicy("g")

	fixtures := []struct {
		name     string
		term     policy.FilterTerm
		warnings int
		kind     EscalationKind
		source   EscalationSource
	}{
		{name: "plain notice", term: policy.FilterTerm{}, warnings: 1, kind: EscalateNotice, source: SourceNone},
		{name: "policy mute", term: policy.FilterTerm{}, warnings: 5, kind: EscalateMute, source: SourcePolicy},
		{name: "policy ban", term: policy.FilterTerm{}, warnings: 8, kind: EscalateBan, source: SourcePolicy},
		{name: "term mute", term: policy.FilterTerm{AutoMute: true, MuteAfter: 2}, warnings: 2, kind: EscalateMute, source: SourceTerm},
		{name: "term mute below", term: policy.FilterTerm{AutoMute: true, MuteAfter: 2}, warnings: 1, kind: EscalateNotice, source: SourceNone},
		{name: "term ban", term: policy.FilterTerm{AutoBan: true, BanAfter: 3}, warnings: 3, kind: EscalateBan, source: SourceTerm},
		{name: "mute wins tie", term: policy.FilterTerm{AutoMute: true, MuteAfter: 2, AutoBan: true, BanAfter: 2}, warnings: 2, kind: EscalateMute, source: SourceTerm},
		{name: "term mute beats policy ban", term: policy.FilterTerm{AutoMute: true, MuteAfter: 2}, warnings: 9, kind: EscalateMute, source: SourceTerm},
		{name: "term ban beats policy mute", term: policy.FilterTerm{AutoBan: true, BanAfter: 4}, warnings: 6, kind: EscalateBan, source: SourceTerm},
		{name: "disabled term rules", term: policy.FilterTerm{MuteAfter: 1, BanAfter: 1}, warnings: 3, kind: EscalateNotice, source: SourceNone},
	}

	for _, fix := range fixtures {
		esc := EscalateForTerm(fix.warnings, &fix.term, &pol)
		assert.Equal(fix.kind, esc.Kind, fix.name)
		assert.Equal(fix.source, esc.Source, fix.name)
	}
}

func TestEscalateForPolicyOrdering(t *testing.T) {
	assert := assert.New(t)

	// thresholds are not required to be ordered; ban is checked first
	pol := policy.DefaultPolicy("g")
	pol.BanThreshold = 2
	pol.MuteThreshold = 4

	assert.Equal(EscalateNotice, EscalateForPolicy(1, &pol).Kind)
	assert.Equal(EscalateBan, EscalateForPolicy(2, &pol).Kind)
	esc := EscalateForPolicy(5, &pol)
	assert.Equal(EscalateBan, esc.Kind)
	assert.Equal(2, esc.Threshold)
}

func TestParseCommand(t *testing.T) {
	assert := assert.New(t)

	name, args, ok := ParseCommand("/Warn@ModBot @alice spamming links")
	assert.True(ok)
	assert.Equal("warn", name)
	assert.Equal([]string{"@alice", "spamming", "links"}, args)

	name, args, ok = ParseCommand("/help")
	assert.True(ok)
	assert.Equal("help", name)
	assert.Empty(args)

	for _, text := range []string{"", "hello /warn", "/", "/@bot"} {
		_, _, ok = ParseCommand(text)
		assert.False(ok, text)
	}
}
