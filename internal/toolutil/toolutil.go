// Package toolutil provides helpers shared by the MCP tools and the REST API.
package toolutil

import (
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidmark/internal/embed"
	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/store"
)

// fallbackUserID is used when neither the caller nor the config names a user.
const fallbackUserID = "local"

// ResolveUser returns userID, or the configured default user when it is blank.
func ResolveUser(userID string) string {
	if u := strings.TrimSpace(userID); u != "" {
		return u
	}
	if engine.Cfg.DefaultUserID != "" {
		return engine.Cfg.DefaultUserID
	}
	return fallbackUserID
}

// VideoView is a video enriched with its classification and embed URL.
// CreatedAt is RFC 3339 so the view has a plain JSON schema.
type VideoView struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	URL        string         `json:"url"`
	IsFavorite bool           `json:"isFavorite"`
	UserID     string         `json:"userId"`
	CreatedAt  string         `json:"createdAt"`
	ListID     string         `json:"listId,omitempty"`
	ListName   string         `json:"listName,omitempty"`
	Provider   embed.Provider `json:"provider"`
	ExternalID string         `json:"externalId,omitempty"`
	EmbedURL   string         `json:"embedUrl,omitempty"`
}

// NewVideoView classifies the video URL and builds its view.
func NewVideoView(v store.Video) VideoView {
	info := embed.Classify(v.URL)
	return VideoView{
		ID:         v.ID,
		Title:      v.Title,
		URL:        v.URL,
		IsFavorite: v.IsFavorite,
		UserID:     v.UserID,
		CreatedAt:  v.CreatedAt.UTC().Format(time.RFC3339),
		ListID:     v.ListID,
		Provider:   info.Provider,
		ExternalID: info.ExternalID,
		EmbedURL:   info.EmbedURL(),
	}
}

// NewVideoViews builds views for videos. names maps list ids to list names
// (see library.Service.ListNames) and may be nil.
func NewVideoViews(videos []store.Video, names map[string]string) []VideoView {
	out := make([]VideoView, 0, len(videos))
	for _, v := range videos {
		vv := NewVideoView(v)
		vv.ListName = names[v.ListID]
		out = append(out, vv)
	}
	return out
}
