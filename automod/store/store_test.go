package store

import (
	"context"
	"testing"
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testStore(t *testing.T) *GormStore {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	// a single connection, so every query sees the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, MigrateDatabase(db))
	return NewGormStore(db, nil)
}

func TestGormTerms(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	n, err := policy.SeedDefaultTerms(ctx, s)
	require.NoError(t, err)
	assert.Equal(5, n)

	dup, err := s.CreateTerm(ctx, policy.NewCustomTerm("spam1"))
	require.NoError(t, err)
	assert.Equal(uint64(6), dup.ID)

	terms, err := s.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(6, len(terms))
	for i := 1; i < len(terms); i++ {
		assert.Less(terms[i-1].ID, terms[i].ID)
	}
	assert.Equal("harassment1", terms[4].Term)
	assert.True(terms[4].AutoMute)
	assert.Equal(2, terms[4].MuteAfter)

	// boolean fields can be switched off
	off := false
	updated, err := s.UpdateTerm(ctx, terms[4].ID, policy.TermUpdate{AutoMute: &off})
	require.NoError(t, err)
	assert.False(updated.AutoMute)
	assert.True(updated.AutoBan)
	got, err := s.GetTerm(ctx, terms[4].ID)
	require.NoError(t, err)
	assert.False(got.AutoMute)

	_, err = s.UpdateTerm(ctx, 999, policy.TermUpdate{AutoMute: &off})
	assert.ErrorIs(err, policy.ErrTermNotFound)
	_, err = s.GetTerm(ctx, 999)
	assert.ErrorIs(err, policy.ErrTermNotFound)

	assert.NoError(s.DeleteTerm(ctx, dup.ID))
	assert.ErrorIs(s.DeleteTerm(ctx, dup.ID), policy.ErrTermNotFound)
}

func TestGormPolicy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	p, err := s.GetPolicy(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(policy.DefaultPolicy("-1001"), *p)

	// repeated access does not reset or duplicate
	off := false
	two := 2
	p, err = s.UpdatePolicy(ctx, "-1001", policy.PolicyUpdate{WarnOnFilterMatch: &off, MuteThreshold: &two})
	require.NoError(t, err)
	assert.False(p.WarnOnFilterMatch)
	p, err = s.GetPolicy(ctx, "-1001")
	require.NoError(t, err)
	assert.False(p.WarnOnFilterMatch)
	assert.Equal(2, p.MuteThreshold)

	zero := 0
	_, err = s.UpdatePolicy(ctx, "-1001", policy.PolicyUpdate{BanThreshold: &zero})
	assert.ErrorIs(err, policy.ErrInvalidPolicy)
	p, err = s.GetPolicy(ctx, "-1001")
	require.NoError(t, err)
	assert.Equal(8, p.BanThreshold)

	// update on a never-seen group starts from defaults
	p, err = s.UpdatePolicy(ctx, "-2002", policy.PolicyUpdate{BanThreshold: &two})
	require.NoError(t, err)
	assert.Equal(2, p.BanThreshold)
	assert.Equal(1440, p.DefaultMuteMinutes)
}

func TestGormUsers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)
	tr := violation.NewTracker(s, nil)

	st, err := tr.IncrementWarning(ctx, "100", violation.Profile{Username: "Bob"})
	require.NoError(t, err)
	assert.Equal(1, st.WarningCount)

	_, err = tr.Mute(ctx, "100", 60)
	require.NoError(t, err)
	st, err = tr.Ban(ctx, "100")
	require.NoError(t, err)
	assert.False(st.IsMuted)

	// the upsert must persist false values too
	loaded, err := s.GetUser(ctx, "100")
	require.NoError(t, err)
	assert.True(loaded.IsBanned)
	assert.False(loaded.IsMuted)
	assert.Nil(loaded.MuteExpiresAt)
	assert.Equal(1, loaded.WarningCount)

	found, err := s.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal("100", found.UserID)
	_, err = s.FindByUsername(ctx, "carol")
	assert.ErrorIs(err, violation.ErrUserNotFound)
	_, err = s.GetUser(ctx, "999")
	assert.ErrorIs(err, violation.ErrUserNotFound)

	users, err := s.ListUsers(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(1, len(users))
}

func TestGormEvents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	termID := uint64(3)
	text := "buy freecoin"
	old := time.Now().Add(-48 * time.Hour).UTC()
	_, err := s.AppendEvent(ctx, auditlog.Event{UserID: "1", ActionType: auditlog.ActionBan, PerformedBy: "admin", Timestamp: old})
	require.NoError(t, err)
	evt, err := s.AppendEvent(ctx, auditlog.Event{
		UserID:            "2",
		ActionType:        auditlog.ActionDelete,
		Details:           "Message contained filtered word: freecoin",
		PerformedBy:       auditlog.PerformedByBot,
		SourceMessageText: &text,
		FilterTermID:      &termID,
	})
	require.NoError(t, err)
	assert.NotZero(evt.ID)
	assert.False(evt.Timestamp.IsZero())

	events, err := s.ListEvents(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(2, len(events))
	assert.Equal(evt.ID, events[0].ID)
	assert.Equal("buy freecoin", *events[0].SourceMessageText)
	assert.Equal(uint64(3), *events[0].FilterTermID)

	events, err = s.ListEventsByUser(ctx, "1", 10)
	require.NoError(t, err)
	assert.Equal(1, len(events))
	assert.Equal(auditlog.ActionBan, events[0].ActionType)

	sum, err := auditlog.Summarize(ctx, s, time.Now())
	require.NoError(t, err)
	assert.Equal(1, sum.Total[auditlog.ActionBan])
	assert.Equal(1, sum.Week[auditlog.ActionBan])
	assert.Equal(0, sum.Today[auditlog.ActionBan])
	assert.Equal(1, sum.Today[auditlog.ActionDelete])
}
