package store

import (
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/violation"
)

type FilterTerm struct {
	ID uint64 `gorm:"column:id;primarykey"`

	// managed by gorm
	CreatedAt time.Time
	UpdatedAt time.Time

	// not unique: the same word may be configured more than once
	Term     string          `gorm:"column:term;not null"`
	Category policy.Category `gorm:"column:category;not null"`

	DeleteMessage bool `gorm:"column:delete_message;not null"`
	WarnUser      bool `gorm:"column:warn_user;not null"`
	AutoMute      bool `gorm:"column:auto_mute;not null"`
	MuteAfter     int  `gorm:"column:mute_after;not null"`
	AutoBan       bool `gorm:"column:auto_ban;not null"`
	BanAfter      int  `gorm:"column:ban_after;not null"`
}

func (FilterTerm) TableName() string {
	return "filter_term"
}

func (m *FilterTerm) toPolicy() policy.FilterTerm {
	return policy.FilterTerm{
		ID:            m.ID,
		Term:          m.Term,
		Category:      m.Category,
		CreatedAt:     m.CreatedAt.UTC(),
		DeleteMessage: m.DeleteMessage,
		WarnUser:      m.WarnUser,
		AutoMute:      m.AutoMute,
		MuteAfter:     m.MuteAfter,
		AutoBan:       m.AutoBan,
		BanAfter:      m.BanAfter,
	}
}

func filterTermRow(t policy.FilterTerm) FilterTerm {
	return FilterTerm{
		ID:            t.ID,
		CreatedAt:     t.CreatedAt,
		Term:          t.Term,
		Category:      t.Category,
		DeleteMessage: t.DeleteMessage,
		WarnUser:      t.WarnUser,
		AutoMute:      t.AutoMute,
		MuteAfter:     t.MuteAfter,
		AutoBan:       t.AutoBan,
		BanAfter:      t.BanAfter,
	}
}

type GroupPolicy struct {
	GroupID string `gorm:"column:group_id;primarykey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	DefaultMuteMinutes  int     `gorm:"column:default_mute_minutes;not null"`
	WarnThreshold       int     `gorm:"column:warn_threshold;not null"`
	MuteThreshold       int     `gorm:"column:mute_threshold;not null"`
	BanThreshold        int     `gorm:"column:ban_threshold;not null"`
	DeleteOnFilterMatch bool    `gorm:"column:delete_on_filter_match;not null"`
	WarnOnFilterMatch   bool    `gorm:"column:warn_on_filter_match;not null"`
	NotifyAdmins        bool    `gorm:"column:notify_admins;not null"`
	WelcomeMessage      *string `gorm:"column:welcome_message"`
}

func (GroupPolicy) TableName() string {
	return "group_policy"
}

func (m *GroupPolicy) toPolicy() policy.GroupPolicy {
	return policy.GroupPolicy{
		GroupID:             m.GroupID,
		DefaultMuteMinutes:  m.DefaultMuteMinutes,
		WarnThreshold:       m.WarnThreshold,
		MuteThreshold:       m.MuteThreshold,
		BanThreshold:        m.BanThreshold,
		DeleteOnFilterMatch: m.DeleteOnFilterMatch,
		WarnOnFilterMatch:   m.WarnOnFilterMatch,
		NotifyAdmins:        m.NotifyAdmins,
		WelcomeMessage:      m.WelcomeMessage,
	}
}

func (m *GroupPolicy) setFrom(p policy.GroupPolicy) {
	m.GroupID = p.GroupID
	m.DefaultMuteMinutes = p.DefaultMuteMinutes
	m.WarnThreshold = p.WarnThreshold
	m.MuteThreshold = p.MuteThreshold
	m.BanThreshold = p.BanThreshold
	m.DeleteOnFilterMatch = p.DeleteOnFilterMatch
	m.WarnOnFilterMatch = p.WarnOnFilterMatch
	m.NotifyAdmins = p.NotifyAdmins
	m.WelcomeMessage = p.WelcomeMessage
}

type UserState struct {
	UserID string `gorm:"column:user_id;primarykey"`

	// timestamps are set by the tracker, not by gorm
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false"`

	Username      string     `gorm:"column:username;index"`
	FirstName     string     `gorm:"column:first_name"`
	LastName      string     `gorm:"column:last_name"`
	WarningCount  int        `gorm:"column:warning_count;not null"`
	IsMuted       bool       `gorm:"column:is_muted;not null"`
	IsBanned      bool       `gorm:"column:is_banned;not null"`
	MuteExpiresAt *time.Time `gorm:"column:mute_expires_at"`
}

func (UserState) TableName() string {
	return "user_state"
}

func (m *UserState) toViolation() violation.UserState {
	s := violation.UserState{
		UserID:        m.UserID,
		Username:      m.Username,
		FirstName:     m.FirstName,
		LastName:      m.LastName,
		WarningCount:  m.WarningCount,
		IsMuted:       m.IsMuted,
		IsBanned:      m.IsBanned,
		MuteExpiresAt: m.MuteExpiresAt,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if s.MuteExpiresAt != nil {
		utc := s.MuteExpiresAt.UTC()
		s.MuteExpiresAt = &utc
	}
	return s
}

func userStateRow(s *violation.UserState) UserState {
	return UserState{
		UserID:        s.UserID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		Username:      s.Username,
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		WarningCount:  s.WarningCount,
		IsMuted:       s.IsMuted,
		IsBanned:      s.IsBanned,
		MuteExpiresAt: s.MuteExpiresAt,
	}
}

// append-only; rows are never updated
type ModerationEvent struct {
	ID        uint64    `gorm:"column:id;primarykey"`
	Timestamp time.Time `gorm:"column:timestamp;index;not null"`

	UserID      string              `gorm:"column:user_id;index;not null"`
	ActionType  auditlog.ActionType `gorm:"column:action_type;not null"`
	Details     string              `gorm:"column:details;not null"`
	PerformedBy string              `gorm:"column:performed_by;not null"`

	SourceMessageText   *string `gorm:"column:source_message_text"`
	FilterTermID        *uint64 `gorm:"column:filter_term_id"`
	MuteDurationMinutes *int    `gorm:"column:mute_duration_minutes"`
	Reason              *string `gorm:"column:reason"`
	GroupID             *string `gorm:"column:group_id"`
}

func (ModerationEvent) TableName() string {
	return "moderation_event"
}

func (m *ModerationEvent) toAuditlog() auditlog.Event {
	return auditlog.Event{
		ID:                  m.ID,
		Timestamp:           m.Timestamp.UTC(),
		UserID:              m.UserID,
		ActionType:          m.ActionType,
		Details:             m.Details,
		PerformedBy:         m.PerformedBy,
		SourceMessageText:   m.SourceMessageText,
		FilterTermID:        m.FilterTermID,
		MuteDurationMinutes: m.MuteDurationMinutes,
		Reason:              m.Reason,
		GroupID:             m.GroupID,
	}
}

func moderationEventRow(e auditlog.Event) ModerationEvent {
	return ModerationEvent{
		Timestamp:           e.Timestamp,
		UserID:              e.UserID,
		ActionType:          e.ActionType,
		Details:             e.Details,
		PerformedBy:         e.PerformedBy,
		SourceMessageText:   e.SourceMessageText,
		FilterTermID:        e.FilterTermID,
		MuteDurationMinutes: e.MuteDurationMinutes,
		Reason:              e.Reason,
		GroupID:             e.GroupID,
	}
}
