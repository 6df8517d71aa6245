// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data API
// for the single purpose of reading live chat. Tokens are persisted via the
// provided TokenStore interface so they can be refreshed and reused across
// restarts.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-narrator/config"
	"github.com/onnwee/chat-narrator/sequencer"
)

const provider = "youtube"

// Chat lookup failures the caller is expected to branch on.
var (
	ErrVideoNotFound   = errors.New("no video found with that id")
	ErrNotLiveStream   = errors.New("video is not a live stream")
	ErrChatUnavailable = errors.New("live chat has not started or has ended")
)

type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, scope string, err error)
}

type Service struct {
	cfg   *config.Config
	db    TokenStore
	oauth *oauth2.Config
}

func New(cfg *config.Config, ts TokenStore) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube.readonly"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		fields := strings.Fields(s)
		if len(fields) > 0 {
			scopes = fields
		}
	}
	oauth := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, db: ts, oauth: oauth}
}

func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = s.db.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " "))
	return tok, nil
}

func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, scope, err := s.db.GetOAuthToken(ctx, provider)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, errors.New("no youtube token stored; visit /auth/youtube/start first")
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if time.Until(tok.Expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return tok, err
	}
	_ = s.db.UpsertOAuthToken(ctx, provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, scope)
	return newTok, nil
}

// Client returns a YouTube API client backed by the stored (and refreshed)
// OAuth token.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	tok, err := s.refreshIfNeeded(ctx)
	if err != nil {
		return nil, err
	}
	client := s.oauth.Client(ctx, tok)
	return yt.New(client)
}

// LiveChatID resolves the active live chat id for a video.
func LiveChatID(ctx context.Context, svc *yt.Service, videoID string) (string, error) {
	if svc == nil {
		return "", fmt.Errorf("nil youtube service")
	}
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil {
		return "", ErrNotLiveStream
	}
	if details.ActiveLiveChatId == "" {
		return "", ErrChatUnavailable
	}
	return details.ActiveLiveChatId, nil
}

// ChatPage is one page of live chat messages plus paging/pacing hints from
// the API.
type ChatPage struct {
	Messages      []sequencer.Message
	NextPageToken string
	PollInterval  time.Duration
}

// ListMessages fetches the next page of live chat messages. Items the API
// returns without a snippet or author still come back as (possibly zero-value)
// messages; the sequencer rejects those as malformed rather than this layer
// guessing at them.
func ListMessages(ctx context.Context, svc *yt.Service, liveChatID, pageToken string) (*ChatPage, error) {
	if svc == nil {
		return nil, fmt.Errorf("nil youtube service")
	}
	call := svc.LiveChatMessages.List(liveChatID, []string{"snippet", "authorDetails"}).MaxResults(200)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		if chatGone(err) {
			return nil, fmt.Errorf("livechatmessages.list: %w", ErrChatUnavailable)
		}
		return nil, fmt.Errorf("livechatmessages.list: %w", err)
	}
	page := &ChatPage{
		NextPageToken: resp.NextPageToken,
		PollInterval:  time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, item := range resp.Items {
		page.Messages = append(page.Messages, messageFromItem(item))
	}
	return page, nil
}

// messageFromItem maps an API resource to the pipeline message type.
func messageFromItem(item *yt.LiveChatMessage) sequencer.Message {
	var m sequencer.Message
	if item == nil {
		return m
	}
	m.ID = item.Id
	if item.Snippet != nil {
		m.Text = item.Snippet.DisplayMessage
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			m.PublishedAt = t.UTC()
		}
	}
	if item.AuthorDetails != nil {
		m.Author = item.AuthorDetails.DisplayName
	}
	return m
}

// chatGone reports whether err means the live chat is over or missing, i.e.
// the caller should re-resolve the chat id rather than retry the same one.
func chatGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "liveChatEnded", "liveChatNotFound", "liveChatDisabled":
			return true
		}
	}
	return gerr.Code == 404
}
