package vidserver

import (
	"context"
	"errors"
	"strings"

	"github.com/anatolykoptev/go_vidmark/internal/embed"
	"github.com/anatolykoptev/go_vidmark/internal/library"
	"github.com/anatolykoptev/go_vidmark/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// VideoAddInput is the input for video_add.
type VideoAddInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	Title      string `json:"title" jsonschema:"Video title"`
	URL        string `json:"url" jsonschema:"YouTube or Instagram video URL"`
	ListID     string `json:"list_id,omitempty" jsonschema:"List to add the video to"`
	IsFavorite bool   `json:"is_favorite,omitempty" jsonschema:"Mark the video as favorite"`
}

// VideoResult is the output for single-video tools.
type VideoResult struct {
	Video toolutil.VideoView `json:"video"`
}

// VideoListInput is the input for video_list.
type VideoListInput struct {
	UserID        string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	FavoritesOnly bool   `json:"favorites_only,omitempty" jsonschema:"Only return favorite videos"`
}

// VideoListResult is the output for tools returning several videos.
type VideoListResult struct {
	Videos []toolutil.VideoView `json:"videos"`
	Total  int                  `json:"total"`
}

// VideoFavoriteInput is the input for video_favorite.
type VideoFavoriteInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	VideoID    string `json:"video_id" jsonschema:"Video id"`
	IsFavorite bool   `json:"is_favorite" jsonschema:"New favorite flag"`
}

// VideoDeleteInput is the input for video_delete.
type VideoDeleteInput struct {
	UserID  string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	VideoID string `json:"video_id" jsonschema:"Video id"`
}

// VideoEmbedInput is the input for video_embed.
type VideoEmbedInput struct {
	URL   string `json:"url" jsonschema:"Video URL to classify"`
	Title string `json:"title,omitempty" jsonschema:"Title for the player"`
}

// StatusResult is the output for tools without a payload.
type StatusResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func registerVideoAdd(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_add",
		Description: "Save a video link (YouTube or Instagram) for the user, optionally adding it to one of their lists. Returns the saved video with its provider and embed URL.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoAddInput) (*mcp.CallToolResult, *VideoResult, error) {
		out, err := t.videoAdd(ctx, input)
		return nil, out, err
	})
}

func registerVideoList(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_list",
		Description: "List the user's saved videos with provider, embed URL and list name. Set favorites_only to list favorites.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoListInput) (*mcp.CallToolResult, *VideoListResult, error) {
		out, err := t.videoList(ctx, input)
		return nil, out, err
	})
}

func registerVideoFavorite(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_favorite",
		Description: "Mark or unmark a saved video as favorite.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoFavoriteInput) (*mcp.CallToolResult, *StatusResult, error) {
		out, err := t.videoFavorite(ctx, input)
		return nil, out, err
	})
}

func registerVideoDelete(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_delete",
		Description: "Delete a saved video. It is also removed from the list it belongs to.",
		Annotations: destructive,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoDeleteInput) (*mcp.CallToolResult, *StatusResult, error) {
		out, err := t.videoDelete(ctx, input)
		return nil, out, err
	})
}

func registerVideoEmbed(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_embed",
		Description: "Classify a video URL as youtube, instagram or none and return the embeddable player reference (embed URL and iframe allow list) or a placeholder.",
		Annotations: readOnly,
	}, func(_ context.Context, _ *mcp.CallToolRequest, input VideoEmbedInput) (*mcp.CallToolResult, embed.Player, error) {
		p, err := videoEmbed(input)
		return nil, p, err
	})
}

func videoEmbed(in VideoEmbedInput) (embed.Player, error) {
	if strings.TrimSpace(in.URL) == "" {
		return embed.Player{}, errors.New("url is required")
	}
	return embed.Resolve(in.URL, in.Title), nil
}

func (t *tools) videoAdd(ctx context.Context, in VideoAddInput) (*VideoResult, error) {
	user := toolutil.ResolveUser(in.UserID)
	if in.ListID != "" {
		if _, err := t.svc.OwnedList(ctx, user, in.ListID); err != nil {
			return nil, err
		}
	}
	v, err := t.svc.AddVideo(ctx, library.NewVideo{
		Title:      in.Title,
		URL:        in.URL,
		UserID:     user,
		IsFavorite: in.IsFavorite,
	}, in.ListID)
	if err != nil {
		return nil, err
	}
	return &VideoResult{Video: toolutil.NewVideoView(*v)}, nil
}

func (t *tools) videoList(ctx context.Context, in VideoListInput) (*VideoListResult, error) {
	user := toolutil.ResolveUser(in.UserID)
	get := t.svc.GetUserVideos
	if in.FavoritesOnly {
		get = t.svc.GetFavoriteVideos
	}
	videos, err := get(ctx, user)
	if err != nil {
		return nil, err
	}
	names, err := t.svc.ListNames(ctx, videos)
	if err != nil {
		return nil, err
	}
	views := toolutil.NewVideoViews(videos, names)
	return &VideoListResult{Videos: views, Total: len(views)}, nil
}

func (t *tools) videoFavorite(ctx context.Context, in VideoFavoriteInput) (*StatusResult, error) {
	if in.VideoID == "" {
		return nil, errors.New("video_id is required")
	}
	if _, err := t.svc.OwnedVideo(ctx, toolutil.ResolveUser(in.UserID), in.VideoID); err != nil {
		return nil, err
	}
	if err := t.svc.SetFavorite(ctx, in.VideoID, in.IsFavorite); err != nil {
		return nil, err
	}
	msg := "removed from favorites"
	if in.IsFavorite {
		msg = "added to favorites"
	}
	return &StatusResult{OK: true, Message: msg}, nil
}

func (t *tools) videoDelete(ctx context.Context, in VideoDeleteInput) (*StatusResult, error) {
	if in.VideoID == "" {
		return nil, errors.New("video_id is required")
	}
	if _, err := t.svc.OwnedVideo(ctx, toolutil.ResolveUser(in.UserID), in.VideoID); err != nil {
		return nil, err
	}
	if err := t.svc.RemoveVideo(ctx, in.VideoID); err != nil {
		return nil, err
	}
	return &StatusResult{OK: true, Message: "video deleted"}, nil
}
