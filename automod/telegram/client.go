package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bluesky-social/tgmod/automod/engine"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot API client. Implements engine.Platform.
//
// With an empty token the client runs in dry mode: no updates are received, platform calls are logged and succeed.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
	dryRun bool
}

var _ engine.Platform = (*Client)(nil)

type ClientConfig struct {
	Token string
	// bot API URL template; defaults to tgbotapi.APIEndpoint
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "telegram")

	if strings.TrimSpace(config.Token) == "" {
		return &Client{logger: logger, dryRun: true}, nil
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// fetches bot identity (getMe), which also validates the token
	api, err := tgbotapi.NewBotAPIWithClient(config.Token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram bot API: %w", err)
	}
	logger.Info("authorized telegram bot", "username", api.Self.UserName)
	return &Client{api: api, logger: logger}, nil
}

func (c *Client) DryRun() bool {
	return c.dryRun
}

// Username of the bot account; empty in dry mode.
func (c *Client) BotUsername() string {
	if c.dryRun {
		return ""
	}
	return c.api.Self.UserName
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram %s id %q: %w", kind, s, err)
	}
	return id, nil
}

func parseChatUser(groupID, userID string) (int64, int64, error) {
	chatID, err := parseID("chat", groupID)
	if err != nil {
		return 0, 0, err
	}
	uid, err := parseID("user", userID)
	if err != nil {
		return 0, 0, err
	}
	return chatID, uid, nil
}

func (c *Client) request(method string, req tgbotapi.Chattable) error {
	if c.dryRun {
		c.logger.Info("dry mode, skipping platform call", "method", method)
		return nil
	}
	if _, err := c.api.Request(req); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return nil
}

func (c *Client) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	chatID, uid, err := parseChatUser(groupID, userID)
	if err != nil {
		return false, err
	}
	if c.dryRun {
		return false, nil
	}
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: uid},
	})
	if err != nil {
		return false, fmt.Errorf("telegram getChatMember: %w", err)
	}
	return member.IsCreator() || member.IsAdministrator(), nil
}

func (c *Client) DeleteMessage(ctx context.Context, groupID, messageID string) error {
	chatID, err := parseID("chat", groupID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid telegram message id %q: %w", messageID, err)
	}
	return c.request("deleteMessage", tgbotapi.NewDeleteMessage(chatID, msgID))
}

func (c *Client) RestrictMember(ctx context.Context, groupID, userID string, until time.Time) error {
	chatID, uid, err := parseChatUser(groupID, userID)
	if err != nil {
		return err
	}
	return c.request("restrictChatMember", tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: uid},
		UntilDate:        until.Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	})
}

func (c *Client) UnrestrictMember(ctx context.Context, groupID, userID string) error {
	chatID, uid, err := parseChatUser(groupID, userID)
	if err != nil {
		return err
	}
	return c.request("restrictChatMember", tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: uid},
		Permissions: &tgbotapi.ChatPermissions{
			CanSendMessages:       true,
			CanSendMediaMessages:  true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	})
}

func (c *Client) RemoveMember(ctx context.Context, groupID, userID string) error {
	chatID, uid, err := parseChatUser(groupID, userID)
	if err != nil {
		return err
	}
	return c.request("banChatMember", tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: uid},
	})
}

func (c *Client) UnbanMember(ctx context.Context, groupID, userID string) error {
	chatID, uid, err := parseChatUser(groupID, userID)
	if err != nil {
		return err
	}
	return c.request("unbanChatMember", tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: uid},
		OnlyIfBanned:     true,
	})
}

func (c *Client) SendMessage(ctx context.Context, groupID, text string) error {
	chatID, err := parseID("chat", groupID)
	if err != nil {
		return err
	}
	if c.dryRun {
		c.logger.Info("dry mode, not sending message", "group", groupID, "text", text)
		return nil
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// Receives updates by long polling, starting at the given offset, and calls handler for each until the context is done.
func (c *Client) Poll(ctx context.Context, offset int, timeoutSec int, handler func(tgbotapi.Update)) error {
	if c.dryRun {
		c.logger.Warn("telegram token is empty, running in dry mode")
		<-ctx.Done()
		return nil
	}
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = timeoutSec
	cfg.AllowedUpdates = []string{"message", "edited_message"}
	updates := c.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			handler(upd)
		}
	}
}
