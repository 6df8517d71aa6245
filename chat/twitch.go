package chat

import (
	"context"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-narrator/config"
	"github.com/onnwee/chat-narrator/sequencer"
)

// twitchIDPrefix namespaces IRC message ids so they can never collide with
// YouTube's in the shared seen-set.
const twitchIDPrefix = "twitch:"

func isTwitchID(id string) bool { return strings.HasPrefix(id, twitchIDPrefix) }

// TwitchBufferSize bounds the hand-off channel between the IRC client and the
// narrator loop. When the loop falls behind (long narrations), the oldest
// unread messages are dropped rather than blocking the IRC read loop.
const TwitchBufferSize = 256

// StartTwitchChatSource connects to Twitch IRC and forwards chat messages
// into sink until ctx is canceled. The narrator loop merges the buffered
// messages into its next batch, so ordering and deduplication happen in one
// place.
func StartTwitchChatSource(ctx context.Context, cfg *config.Config, sink chan<- sequencer.Message) {
	if !cfg.TwitchEnabled() {
		slog.Info("twitch creds not set; skipping twitch chat source")
		return
	}
	client := twitch.NewClient(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		m := sequencer.Message{
			ID:          twitchIDPrefix + msg.ID,
			Author:      msg.User.DisplayName,
			Text:        msg.Message,
			PublishedAt: msg.Time.UTC(),
		}
		select {
		case sink <- m:
		default:
			slog.Warn("twitch buffer full; dropping message", slog.String("author", m.Author))
		}
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Debug("twitch disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	client.Join(cfg.TwitchChannel)
	slog.Info("twitch chat source starting", slog.String("channel", cfg.TwitchChannel))
	if err := client.Connect(); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	<-done
}
