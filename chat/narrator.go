package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/chat-narrator/config"
	"github.com/onnwee/chat-narrator/db"
	"github.com/onnwee/chat-narrator/sequencer"
	"github.com/onnwee/chat-narrator/telemetry"
	"github.com/onnwee/chat-narrator/tts"
	"github.com/onnwee/chat-narrator/youtubeapi"
)

// Poller supplies successive pages of live chat messages. The page token is
// opaque and carried between calls; an empty token asks for the first page of
// the current poll window.
type Poller interface {
	Poll(ctx context.Context, pageToken string) (*youtubeapi.ChatPage, error)
}

// insertTranscript is a seam for tests that run the loop without Postgres.
var insertTranscript = db.InsertMessage

// NarratorJob wires the poller, sequencer, narrator, and transcript store
// into one loop. All fields except Twitch are required.
type NarratorJob struct {
	DB       *sql.DB
	Cfg      *config.Config
	Narrator tts.Narrator
	Poller   Poller
	Twitch   <-chan sequencer.Message // optional secondary source, may be nil

	pageToken string
}

// StartNarratorJob builds the YouTube-backed poller and runs the narrator
// loop until ctx is canceled. It returns early when VIDEO_ID is missing.
func StartNarratorJob(ctx context.Context, dbc *sql.DB, cfg *config.Config, narrator tts.Narrator, twitch <-chan sequencer.Message) {
	if err := cfg.ValidateNarratorReady(); err != nil {
		slog.Info("narrator disabled", slog.Any("reason", err))
		return
	}
	svc := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: dbc})
	job := &NarratorJob{
		DB:       dbc,
		Cfg:      cfg,
		Narrator: narrator,
		Poller:   &youtubePoller{service: svc, videoID: cfg.VideoID},
		Twitch:   twitch,
	}
	job.Run(ctx)
}

// Run executes poll/ingest/drain cycles until ctx is canceled. The sequencer
// lives for the whole session so deduplication spans polls.
func (j *NarratorJob) Run(ctx context.Context) {
	seq := sequencer.New(j.Cfg.SeenCapacity)
	slog.Info("narrator job starting",
		slog.String("video_id", j.Cfg.VideoID),
		slog.String("engine", j.Narrator.Name()),
		slog.Duration("poll_interval", j.Cfg.PollInterval),
		slog.Int("seen_capacity", j.Cfg.SeenCapacity))
	for {
		if ctx.Err() != nil {
			slog.Info("narrator job stopped")
			return
		}
		wait, err := j.cycle(ctx, seq)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("narrator job stopped")
				return
			}
			telemetry.SetChatLive(false)
			if telemetry.PollFailures != nil {
				telemetry.PollFailures.Inc()
			}
			slog.Warn("poll cycle failed", slog.Any("err", err))
			if errors.Is(err, youtubeapi.ErrChatUnavailable) {
				// The chat id went stale (stream ended or restarted); the
				// poller re-resolves on the next cycle, so restart paging.
				j.pageToken = ""
			}
			wait = j.Cfg.PollInterval
		}
		select {
		case <-ctx.Done():
			slog.Info("narrator job stopped")
			return
		case <-time.After(wait):
		}
	}
}

// cycle runs one poll: fetch a page, merge pending Twitch messages, ingest,
// then drain fully to the narrator. It returns how long to sleep before the
// next cycle, honoring the API's pacing hint when it is slower than ours.
func (j *NarratorJob) cycle(ctx context.Context, seq *sequencer.Sequencer) (time.Duration, error) {
	if telemetry.PollCycles != nil {
		telemetry.PollCycles.Inc()
	}
	if j.DB != nil {
		if err := db.SetKV(ctx, j.DB, "job_narrator_last", time.Now().UTC().Format(time.RFC3339)); err != nil {
			slog.Debug("heartbeat write failed", slog.Any("err", err))
		}
	}

	page, err := j.Poller.Poll(ctx, j.pageToken)
	if err != nil {
		return 0, err
	}
	telemetry.SetChatLive(true)

	batch := append(page.Messages, drainPending(j.Twitch)...)
	stats := seq.Ingest(batch)
	telemetry.RecordIngest(stats.Accepted, stats.Duplicates, stats.Malformed, stats.Evicted)
	telemetry.SetQueueDepth(seq.Pending())
	if stats.Accepted > 0 {
		slog.Debug("batch ingested",
			slog.Int("accepted", stats.Accepted),
			slog.Int("duplicates", stats.Duplicates),
			slog.Int("malformed", stats.Malformed),
			slog.Int("evicted", stats.Evicted))
	}

	for msg := range seq.Drain() {
		j.deliver(ctx, msg)
		telemetry.SetQueueDepth(seq.Pending())
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	j.pageToken = page.NextPageToken
	wait := j.Cfg.PollInterval
	if page.PollInterval > wait {
		wait = page.PollInterval
	}
	return wait, nil
}

// deliver narrates one message (subject to the author allowlist) and records
// it in the transcript. Narration failures are logged and skipped; they never
// stop the loop.
func (j *NarratorJob) deliver(ctx context.Context, msg sequencer.Message) {
	source := "youtube"
	if isTwitchID(msg.ID) {
		source = "twitch"
	}
	if !j.Cfg.AuthorAllowed(msg.Author) {
		slog.Debug("author not allowed; skipping narration", slog.String("author", msg.Author))
		j.record(ctx, source, msg, false)
		return
	}
	author := j.Cfg.SpokenName(msg.Author)
	slog.Info("chat message", slog.String("author", author), slog.String("text", msg.Text), slog.String("source", source))
	text := fmt.Sprintf("%s says: %s", author, msg.Text)
	var speakErr error
	telemetry.TimeFunc(telemetry.SpeakDuration, func() {
		speakErr = j.Narrator.Speak(ctx, text)
	})
	if speakErr != nil {
		if telemetry.SpeakFailures != nil {
			telemetry.SpeakFailures.Inc()
		}
		slog.Warn("narration failed; skipping message", slog.String("id", msg.ID), slog.Any("err", speakErr))
		j.record(ctx, source, msg, false)
		return
	}
	if telemetry.MessagesSpoken != nil {
		telemetry.MessagesSpoken.Inc()
	}
	j.record(ctx, source, msg, true)
}

func (j *NarratorJob) record(ctx context.Context, source string, msg sequencer.Message, spoken bool) {
	if j.DB == nil {
		return
	}
	if err := insertTranscript(ctx, j.DB, source, msg, spoken); err != nil {
		slog.Error("failed to insert transcript row", slog.String("id", msg.ID), slog.Any("err", err))
	}
}

// drainPending empties whatever the Twitch source has buffered without
// blocking. A nil channel yields nothing.
func drainPending(ch <-chan sequencer.Message) []sequencer.Message {
	var out []sequencer.Message
	for {
		select {
		case m := <-ch:
			out = append(out, m)
		default:
			return out
		}
	}
}

// youtubePoller pages through a live chat, resolving (and re-resolving) the
// active chat id as needed. Transient API errors are retried with exponential
// backoff before a cycle is declared failed.
type youtubePoller struct {
	service    *youtubeapi.Service
	videoID    string
	liveChatID string
}

func (p *youtubePoller) Poll(ctx context.Context, pageToken string) (*youtubeapi.ChatPage, error) {
	if p.liveChatID == "" {
		id, err := backoff.Retry(ctx, func() (string, error) {
			svc, err := p.service.Client(ctx)
			if err != nil {
				return "", err
			}
			id, err := youtubeapi.LiveChatID(ctx, svc, p.videoID)
			if errors.Is(err, youtubeapi.ErrVideoNotFound) || errors.Is(err, youtubeapi.ErrNotLiveStream) {
				// Wrong VIDEO_ID or not a live stream; retrying won't help.
				return "", backoff.Permanent(err)
			}
			return id, err
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(4))
		if err != nil {
			return nil, fmt.Errorf("resolve live chat id: %w", err)
		}
		slog.Info("connected to live chat", slog.String("video_id", p.videoID), slog.String("live_chat_id", id))
		p.liveChatID = id
	}
	page, err := backoff.Retry(ctx, func() (*youtubeapi.ChatPage, error) {
		svc, err := p.service.Client(ctx)
		if err != nil {
			return nil, err
		}
		page, err := youtubeapi.ListMessages(ctx, svc, p.liveChatID, pageToken)
		if errors.Is(err, youtubeapi.ErrChatUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return page, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(4))
	if errors.Is(err, youtubeapi.ErrChatUnavailable) {
		// Force a fresh lookup next cycle; the stream may have restarted
		// under a new chat id.
		p.liveChatID = ""
	}
	return page, err
}
