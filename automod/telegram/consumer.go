package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluesky-social/tgmod/automod/engine"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

var updateOffsetKey = "tgmod/update-offset"

// Receives bot updates and dispatches them to the engine, each on its own goroutine.
type Consumer struct {
	Parallelism int
	Logger      *slog.Logger
	RedisClient *redis.Client
	Engine      *engine.Engine
	Client      *Client
	// long-poll timeout in seconds
	PollTimeout int
	// when set, commands addressed to other bots ("/ban@otherbot") are scanned as plain messages
	BotUsername string

	// most recent update ID received. Best-effort, since handling is concurrent; use atomics.
	lastUpdate int64
}

func (tc *Consumer) Run(ctx context.Context) error {
	if tc.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if tc.Client == nil {
		return fmt.Errorf("nil telegram client")
	}

	offset, err := tc.ReadLastOffset(ctx)
	if err != nil {
		return err
	}

	par := tc.Parallelism
	if par <= 0 {
		par = 16
	}
	sem := semaphore.NewWeighted(int64(par))
	var wg sync.WaitGroup

	tc.Logger.Info("receiving telegram updates", "offset", offset, "parallelism", par)
	err = tc.Client.Poll(ctx, offset, tc.PollTimeout, func(upd tgbotapi.Update) {
		atomic.StoreInt64(&tc.lastUpdate, int64(upd.UpdateID))
		if err := sem.Acquire(ctx, 1); err != nil {
			// shutting down; the update is re-delivered from the persisted offset
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			tc.HandleUpdate(ctx, upd)
		}()
	})
	wg.Wait()
	return err
}

func actorFromUser(u *tgbotapi.User) engine.Actor {
	return engine.Actor{
		UserID:    strconv.FormatInt(u.ID, 10),
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func isGroupChat(c *tgbotapi.Chat) bool {
	return c != nil && (c.IsGroup() || c.IsSuperGroup())
}

// Returns the "@botname" suffix of a command, if any.
func commandAddressee(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	if at := strings.IndexByte(fields[0], '@'); at >= 0 {
		return fields[0][at+1:]
	}
	return ""
}

// Routes a single update to the engine. Errors are logged, not returned.
func (tc *Consumer) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		tc.handleMessage(ctx, upd.Message, false)
	case upd.EditedMessage != nil:
		tc.handleMessage(ctx, upd.EditedMessage, true)
	default:
		updatesReceived.WithLabelValues("ignored").Inc()
	}
}

func (tc *Consumer) handleMessage(ctx context.Context, msg *tgbotapi.Message, edited bool) {
	if !isGroupChat(msg.Chat) {
		updatesReceived.WithLabelValues("ignored").Inc()
		return
	}
	groupID := strconv.FormatInt(msg.Chat.ID, 10)
	logger := tc.Logger.With("group", groupID, "message", msg.MessageID)

	if len(msg.NewChatMembers) > 0 {
		updatesReceived.WithLabelValues("join").Inc()
		evt := engine.JoinEvent{GroupID: groupID}
		for i := range msg.NewChatMembers {
			if msg.NewChatMembers[i].IsBot {
				continue
			}
			evt.Members = append(evt.Members, actorFromUser(&msg.NewChatMembers[i]))
		}
		if _, err := tc.Engine.ProcessJoin(ctx, evt); err != nil {
			logger.Error("engine failed to process join", "err", err)
		}
		return
	}

	if msg.From == nil || msg.From.IsBot {
		updatesReceived.WithLabelValues("ignored").Inc()
		return
	}
	sender := actorFromUser(msg.From)
	logger = logger.With("user", sender.UserID)

	if !edited {
		if name, args, ok := engine.ParseCommand(msg.Text); ok && engine.IsCommand(name) {
			to := commandAddressee(msg.Text)
			if to == "" || tc.BotUsername == "" || strings.EqualFold(to, tc.BotUsername) {
				updatesReceived.WithLabelValues("command").Inc()
				evt := engine.CommandEvent{
					GroupID:   groupID,
					MessageID: strconv.Itoa(msg.MessageID),
					Sender:    sender,
					Command:   name,
					Args:      args,
				}
				if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
					target := actorFromUser(msg.ReplyToMessage.From)
					evt.ReplyTo = &target
				}
				if _, err := tc.Engine.ProcessCommand(ctx, evt); err != nil {
					logger.Warn("command failed", "command", name, "err", err)
				}
				return
			}
		}
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		updatesReceived.WithLabelValues("ignored").Inc()
		return
	}
	if edited {
		updatesReceived.WithLabelValues("edited").Inc()
	} else {
		updatesReceived.WithLabelValues("message").Inc()
	}
	evt := engine.MessageEvent{
		GroupID:   groupID,
		MessageID: strconv.Itoa(msg.MessageID),
		Sender:    sender,
		Text:      text,
	}
	if _, err := tc.Engine.ProcessMessage(ctx, evt); err != nil {
		logger.Error("engine failed to process message", "err", err)
	}
}

// Update offset to resume from: the last persisted update ID plus one, or zero.
func (tc *Consumer) ReadLastOffset(ctx context.Context) (int, error) {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		tc.Logger.Info("redis not configured, skipping offset read")
		return 0, nil
	}

	val, err := tc.RedisClient.Get(ctx, updateOffsetKey).Int64()
	if err == redis.Nil {
		tc.Logger.Info("no pre-existing update offset in redis")
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	tc.Logger.Info("found prior update offset in redis", "offset", val)
	return int(val), nil
}

func (tc *Consumer) PersistOffset(ctx context.Context) error {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		return nil
	}
	last := atomic.LoadInt64(&tc.lastUpdate)
	if last <= 0 {
		return nil
	}
	return tc.RedisClient.Set(ctx, updateOffsetKey, last+1, 14*24*time.Hour).Err()
}

// this method runs in a loop, persisting the current offset every 5 seconds
func (tc *Consumer) RunPersistOffset(ctx context.Context) error {
	// if redis isn't configured, just skip
	if tc.RedisClient == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			last := atomic.LoadInt64(&tc.lastUpdate)
			if last >= 1 {
				tc.Logger.Info("persisting final update offset", "update", last)
				if err := tc.PersistOffset(context.WithoutCancel(ctx)); err != nil {
					tc.Logger.Error("failed to persist update offset", "err", err, "update", last)
				}
			}
			return nil
		case <-ticker.C:
			if err := tc.PersistOffset(ctx); err != nil {
				tc.Logger.Error("failed to persist update offset", "err", err)
			}
		}
	}
}
