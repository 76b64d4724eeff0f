package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/countstore"
	"github.com/bluesky-social/tgmod/automod/flagstore"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"
)

// A recorded call against MockPlatform.
type PlatformCall struct {
	Op      string
	GroupID string
	// user or message ID, or message text for "send_message"
	Arg   string
	Until time.Time
}

// In-memory Platform for tests. Admins is keyed by user ID; Failures makes the named operation return the given error.
type MockPlatform struct {
	mtx      sync.Mutex
	Admins   map[string]bool
	Failures map[string]error
	Calls    []PlatformCall
}

var _ Platform = (*MockPlatform)(nil)

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		Admins:   make(map[string]bool),
		Failures: make(map[string]error),
	}
}

func (p *MockPlatform) record(call PlatformCall) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.Calls = append(p.Calls, call)
	return p.Failures[call.Op]
}

func (p *MockPlatform) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	if err := p.record(PlatformCall{Op: "is_admin", GroupID: groupID, Arg: userID}); err != nil {
		return false, err
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.Admins[userID], nil
}

func (p *MockPlatform) DeleteMessage(ctx context.Context, groupID, messageID string) error {
	return p.record(PlatformCall{Op: "delete_message", GroupID: groupID, Arg: messageID})
}

func (p *MockPlatform) RestrictMember(ctx context.Context, groupID, userID string, until time.Time) error {
	return p.record(PlatformCall{Op: "restrict_member", GroupID: groupID, Arg: userID, Until: until})
}

func (p *MockPlatform) UnrestrictMember(ctx context.Context, groupID, userID string) error {
	return p.record(PlatformCall{Op: "unrestrict_member", GroupID: groupID, Arg: userID})
}

func (p *MockPlatform) RemoveMember(ctx context.Context, groupID, userID string) error {
	return p.record(PlatformCall{Op: "remove_member", GroupID: groupID, Arg: userID})
}

func (p *MockPlatform) UnbanMember(ctx context.Context, groupID, userID string) error {
	return p.record(PlatformCall{Op: "unban_member", GroupID: groupID, Arg: userID})
}

func (p *MockPlatform) SendMessage(ctx context.Context, groupID, text string) error {
	return p.record(PlatformCall{Op: "send_message", GroupID: groupID, Arg: text})
}

// Calls with the given op, in order.
func (p *MockPlatform) CallsFor(op string) []PlatformCall {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	out := []PlatformCall{}
	for _, c := range p.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Text of every message sent, in order.
func (p *MockPlatform) Sent() []string {
	out := []string{}
	for _, c := range p.CallsFor("send_message") {
		out = append(out, c.Arg)
	}
	return out
}

func (p *MockPlatform) Reset() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.Calls = nil
}

type MockNotifier struct {
	mtx  sync.Mutex
	Sent []Notification
}

func (n *MockNotifier) SendNotification(ctx context.Context, note Notification) error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.Sent = append(n.Sent, note)
	return nil
}

// Engine wired entirely to in-memory stores and a MockPlatform.
func EngineTestFixture() (*Engine, *MockPlatform) {
	platform := NewMockPlatform()
	policies := policy.NewCachedStore(policy.NewMemStore(), policy.NewMemCaches(10, time.Hour), slog.Default())
	eng := Engine{
		Logger:   slog.Default(),
		Policies: policies,
		Tracker:  violation.NewTracker(violation.NewMemStore(), slog.Default()),
		Audit:    auditlog.NewMemLog(),
		Platform: platform,
		Counters: countstore.NewMemCountStore(),
		Flags:    flagstore.NewMemFlagStore(),
	}
	return &eng, platform
}

// Adds terms to the fixture, failing loudly on error.
func MustAddTerms(eng *Engine, terms ...policy.FilterTerm) []policy.FilterTerm {
	out := make([]policy.FilterTerm, 0, len(terms))
	for _, t := range terms {
		created, err := eng.Policies.CreateTerm(context.Background(), t)
		if err != nil {
			panic(fmt.Sprintf("creating test term %q: %v", t.Term, err))
		}
		out = append(out, *created)
	}
	return out
}
