package engine

import (
	"strings"

	"github.com/bluesky-social/tgmod/automod/violation"
)

// A chat participant, as described by the platform at event time.
type Actor struct {
	UserID    string
	Username  string
	FirstName string
	LastName  string
}

func (a Actor) Profile() violation.Profile {
	return violation.Profile{
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

// Value recorded as PerformedBy: the username, else the numeric ID.
func (a Actor) Identity() string {
	if a.Username != "" {
		return a.Username
	}
	return a.UserID
}

func (a Actor) Mention() string {
	return "@" + a.Identity()
}

// An ordinary group message, scanned against the filter list.
type MessageEvent struct {
	GroupID   string
	MessageID string
	Sender    Actor
	Text      string
}

// A slash command sent to a group.
type CommandEvent struct {
	GroupID   string
	MessageID string
	Sender    Actor
	// lower-case, without leading slash or "@botname" suffix
	Command string
	Args    []string
	// author of the message this command replied to, if any
	ReplyTo *Actor
}

// Splits "/cmd@botname arg1 arg2" into a command name and arguments. Returns false if the text is not a command.
func ParseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := fields[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}
