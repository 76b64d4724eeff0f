package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/duration"
)

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

func (n *SlackNotifier) SendNotification(ctx context.Context, note Notification) error {
	return n.sendSlackMsg(ctx, slackBody(note))
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || string(respBody) != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}

func slackBody(note Notification) string {
	msg := "⚠️ Group Moderation Action ⚠️\n"
	msg += fmt.Sprintf("group `%s` / user `%s` (%s)\n", note.GroupID, note.UserID, note.Display)
	switch note.Action {
	case auditlog.ActionMute:
		msg += fmt.Sprintf("Action: `mute` for %s\n", duration.FormatMinutes(note.Minutes))
	default:
		msg += fmt.Sprintf("Action: `%s`\n", note.Action)
	}
	if note.Reason != "" {
		msg += fmt.Sprintf("Reason: %s\n", note.Reason)
	}
	msg += fmt.Sprintf("By: `%s`\n", note.PerformedBy)
	return msg
}
