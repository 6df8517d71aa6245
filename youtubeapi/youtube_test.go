package youtubeapi

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"
)

func TestMessageFromItem(t *testing.T) {
	item := &yt.LiveChatMessage{
		Id: "LCC.abc123",
		Snippet: &yt.LiveChatMessageSnippet{
			DisplayMessage: "hello stream",
			PublishedAt:    "2025-03-01T12:00:05Z",
		},
		AuthorDetails: &yt.LiveChatMessageAuthorDetails{DisplayName: "Fay Boyd"},
	}
	m := messageFromItem(item)
	if m.ID != "LCC.abc123" || m.Author != "Fay Boyd" || m.Text != "hello stream" {
		t.Errorf("unexpected mapping: %+v", m)
	}
	want := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	if !m.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", m.PublishedAt, want)
	}
}

func TestMessageFromItemMissingPieces(t *testing.T) {
	// A snippet-less item maps to a textless message the sequencer will
	// reject as malformed; this layer doesn't invent values.
	m := messageFromItem(&yt.LiveChatMessage{Id: "LCC.noSnippet"})
	if m.ID != "LCC.noSnippet" || m.Text != "" || m.Author != "" {
		t.Errorf("unexpected mapping: %+v", m)
	}
	if m := messageFromItem(nil); m.ID != "" {
		t.Errorf("nil item should map to zero message, got %+v", m)
	}
	// Unparseable timestamp leaves the zero time rather than failing.
	m = messageFromItem(&yt.LiveChatMessage{
		Id:      "LCC.badTime",
		Snippet: &yt.LiveChatMessageSnippet{DisplayMessage: "hi", PublishedAt: "yesterday"},
	})
	if !m.PublishedAt.IsZero() {
		t.Errorf("bad timestamp should leave zero time, got %v", m.PublishedAt)
	}
}

func TestChatGone(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"chat ended", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "liveChatEnded"}}}, true},
		{"chat not found", &googleapi.Error{Code: 404, Errors: []googleapi.ErrorItem{{Reason: "liveChatNotFound"}}}, true},
		{"chat disabled", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "liveChatDisabled"}}}, true},
		{"plain 404", &googleapi.Error{Code: 404}, true},
		{"rate limited", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, false},
		{"wrapped", fmt.Errorf("call failed: %w", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "liveChatEnded"}}}), true},
		{"not a googleapi error", errors.New("connection reset"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := chatGone(c.err); got != c.want {
				t.Errorf("chatGone(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}
