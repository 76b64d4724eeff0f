// Per-group moderation policy and the filtered-term list.
//
// This package only holds data and data access: the decisions built on top of it live in the automod engine.
package policy

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTermNotFound  = errors.New("filter term not found")
	ErrInvalidPolicy = errors.New("invalid group policy")
	ErrInvalidTerm   = errors.New("invalid filter term")
)

type Category string

const (
	CategoryProfanity  = Category("profanity")
	CategorySpam       = Category("spam")
	CategoryHarassment = Category("harassment")
	CategoryCustom     = Category("custom")
)

func ParseCategory(raw string) (Category, error) {
	switch c := Category(raw); c {
	case CategoryProfanity, CategorySpam, CategoryHarassment, CategoryCustom:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidTerm, raw)
	}
}

// A configured word or phrase whose presence in a message triggers moderation.
//
// Terms are not unique: the same text may be configured more than once, and lists are always returned in ascending ID (creation) order.
type FilterTerm struct {
	ID        uint64    `json:"id"`
	Term      string    `json:"term"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`

	// actions on any match
	DeleteMessage bool `json:"deleteMessage"`
	WarnUser      bool `json:"warnUser"`

	// term-specific escalation, evaluated before group-wide thresholds
	AutoMute  bool `json:"autoMute"`
	MuteAfter int  `json:"muteAfter"`
	AutoBan   bool `json:"autoBan"`
	BanAfter  int  `json:"banAfter"`
}

// Term settings used by the "/addfilter" command.
func NewCustomTerm(term string) FilterTerm {
	return FilterTerm{
		Term:          term,
		Category:      CategoryCustom,
		DeleteMessage: true,
		WarnUser:      true,
		AutoMute:      false,
		MuteAfter:     3,
		AutoBan:       false,
		BanAfter:      5,
	}
}

func (t *FilterTerm) Validate() error {
	if t.Term == "" {
		return fmt.Errorf("%w: empty term", ErrInvalidTerm)
	}
	if _, err := ParseCategory(string(t.Category)); err != nil {
		return err
	}
	if t.MuteAfter < 0 || t.BanAfter < 0 {
		return fmt.Errorf("%w: negative escalation count", ErrInvalidTerm)
	}
	return nil
}

// Partial update of a FilterTerm; nil fields are left unchanged.
type TermUpdate struct {
	Term          *string   `json:"term,omitempty"`
	Category      *Category `json:"category,omitempty"`
	DeleteMessage *bool     `json:"deleteMessage,omitempty"`
	WarnUser      *bool     `json:"warnUser,omitempty"`
	AutoMute      *bool     `json:"autoMute,omitempty"`
	MuteAfter     *int      `json:"muteAfter,omitempty"`
	AutoBan       *bool     `json:"autoBan,omitempty"`
	BanAfter      *int      `json:"banAfter,omitempty"`
}

// Returns a copy of the term with the update applied. Does not validate.
func (u TermUpdate) Apply(t FilterTerm) FilterTerm {
	if u.Term != nil {
		t.Term = *u.Term
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.DeleteMessage != nil {
		t.DeleteMessage = *u.DeleteMessage
	}
	if u.WarnUser != nil {
		t.WarnUser = *u.WarnUser
	}
	if u.AutoMute != nil {
		t.AutoMute = *u.AutoMute
	}
	if u.MuteAfter != nil {
		t.MuteAfter = *u.MuteAfter
	}
	if u.AutoBan != nil {
		t.AutoBan = *u.AutoBan
	}
	if u.BanAfter != nil {
		t.BanAfter = *u.BanAfter
	}
	return t
}

// Moderation configuration for a single group (chat).
//
// Thresholds are warning counts. Their relative order is not enforced: a mute threshold below the warn threshold is a valid configuration.
type GroupPolicy struct {
	GroupID             string  `json:"groupId"`
	DefaultMuteMinutes  int     `json:"defaultMuteMinutes"`
	WarnThreshold       int     `json:"warnThreshold"`
	MuteThreshold       int     `json:"muteThreshold"`
	BanThreshold        int     `json:"banThreshold"`
	DeleteOnFilterMatch bool    `json:"deleteOnFilterMatch"`
	WarnOnFilterMatch   bool    `json:"warnOnFilterMatch"`
	NotifyAdmins        bool    `json:"notifyAdmins"`
	WelcomeMessage      *string `json:"welcomeMessage,omitempty"`
}

// The policy a group gets on first access.
func DefaultPolicy(groupID string) GroupPolicy {
	return GroupPolicy{
		GroupID:             groupID,
		DefaultMuteMinutes:  24 * 60,
		WarnThreshold:       3,
		MuteThreshold:       5,
		BanThreshold:        8,
		DeleteOnFilterMatch: true,
		WarnOnFilterMatch:   true,
		NotifyAdmins:        true,
	}
}

func (p *GroupPolicy) Validate() error {
	if p.GroupID == "" {
		return fmt.Errorf("%w: missing group id", ErrInvalidPolicy)
	}
	if p.DefaultMuteMinutes <= 0 || p.WarnThreshold <= 0 || p.MuteThreshold <= 0 || p.BanThreshold <= 0 {
		return fmt.Errorf("%w: thresholds and mute duration must be positive", ErrInvalidPolicy)
	}
	return nil
}

// Partial update of a GroupPolicy; nil fields are left unchanged.
type PolicyUpdate struct {
	DefaultMuteMinutes  *int    `json:"defaultMuteMinutes,omitempty"`
	WarnThreshold       *int    `json:"warnThreshold,omitempty"`
	MuteThreshold       *int    `json:"muteThreshold,omitempty"`
	BanThreshold        *int    `json:"banThreshold,omitempty"`
	DeleteOnFilterMatch *bool   `json:"deleteOnFilterMatch,omitempty"`
	WarnOnFilterMatch   *bool   `json:"warnOnFilterMatch,omitempty"`
	NotifyAdmins        *bool   `json:"notifyAdmins,omitempty"`
	WelcomeMessage      *string `json:"welcomeMessage,omitempty"`
}

// Returns a copy of the policy with the update applied. An empty WelcomeMessage clears it.
func (u PolicyUpdate) Apply(p GroupPolicy) GroupPolicy {
	if u.DefaultMuteMinutes != nil {
		p.DefaultMuteMinutes = *u.DefaultMuteMinutes
	}
	if u.WarnThreshold != nil {
		p.WarnThreshold = *u.WarnThreshold
	}
	if u.MuteThreshold != nil {
		p.MuteThreshold = *u.MuteThreshold
	}
	if u.BanThreshold != nil {
		p.BanThreshold = *u.BanThreshold
	}
	if u.DeleteOnFilterMatch != nil {
		p.DeleteOnFilterMatch = *u.DeleteOnFilterMatch
	}
	if u.WarnOnFilterMatch != nil {
		p.WarnOnFilterMatch = *u.WarnOnFilterMatch
	}
	if u.NotifyAdmins != nil {
		p.NotifyAdmins = *u.NotifyAdmins
	}
	if u.WelcomeMessage != nil {
		if *u.WelcomeMessage == "" {
			p.WelcomeMessage = nil
		} else {
			msg := *u.WelcomeMessage
			p.WelcomeMessage = &msg
		}
	}
	return p
}
