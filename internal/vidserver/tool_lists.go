package vidserver

import (
	"context"
	"errors"

	"github.com/anatolykoptev/go_vidmark/internal/store"
	"github.com/anatolykoptev/go_vidmark/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListCreateInput is the input for list_create.
type ListCreateInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	Name   string `json:"name" jsonschema:"List name"`
}

// ListInput is the input for tools addressing one list.
type ListInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	ListID string `json:"list_id" jsonschema:"List id"`
}

// ListRenameInput is the input for list_rename.
type ListRenameInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	ListID string `json:"list_id" jsonschema:"List id"`
	Name   string `json:"name" jsonschema:"New list name"`
}

// ListVideoInput is the input for list_add_video and list_remove_video.
type ListVideoInput struct {
	UserID  string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	ListID  string `json:"list_id" jsonschema:"List id"`
	VideoID string `json:"video_id" jsonschema:"Video id"`
}

// ListResult is the output for single-list tools.
type ListResult struct {
	List store.List `json:"list"`
}

// ListsResult is the output for list_get without list_id.
type ListsResult struct {
	Lists []store.List `json:"lists"`
	Total int          `json:"total"`
}

func registerListCreate(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_create",
		Description: "Create a new, empty named video list for the user. List names need not be unique.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListCreateInput) (*mcp.CallToolResult, *ListResult, error) {
		l, err := t.svc.CreateList(ctx, toolutil.ResolveUser(input.UserID), input.Name)
		if err != nil {
			return nil, nil, err
		}
		return nil, &ListResult{List: *l}, nil
	})
}

func registerListGet(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_get",
		Description: "Get one list by list_id, or all of the user's lists when list_id is empty.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, *ListsResult, error) {
		out, err := t.listGet(ctx, input)
		return nil, out, err
	})
}

func registerListRename(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_rename",
		Description: "Rename one of the user's lists.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListRenameInput) (*mcp.CallToolResult, *StatusResult, error) {
		out, err := t.listRename(ctx, input)
		return nil, out, err
	})
}

func registerListDelete(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_delete",
		Description: "Delete one of the user's lists. Videos in it are kept and still reference the deleted list until library_check repairs them.",
		Annotations: destructive,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, *StatusResult, error) {
		out, err := t.listDelete(ctx, input)
		return nil, out, err
	})
}

func registerListVideos(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_videos",
		Description: "Return the videos of a list in list order, with provider and embed URL. Deleted videos are skipped.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, *VideoListResult, error) {
		out, err := t.listVideos(ctx, input)
		return nil, out, err
	})
}

func registerListAddVideo(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_add_video",
		Description: "Add a saved video to a list. The list and the video are updated together; a video belongs to at most one list.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListVideoInput) (*mcp.CallToolResult, *StatusResult, error) {
		out, err := t.listAddVideo(ctx, input)
		return nil, out, err
	})
}

func registerListRemoveVideo(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_remove_video",
		Description: "Remove a video from a list. The video itself is kept.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListVideoInput) (*mcp.CallToolResult, *StatusResult, error) {
		out, err := t.listRemoveVideo(ctx, input)
		return nil, out, err
	})
}

// owned checks that listID is set and belongs to the resolved user.
func (t *tools) owned(ctx context.Context, userID, listID string) (*store.List, error) {
	if listID == "" {
		return nil, errors.New("list_id is required")
	}
	return t.svc.OwnedList(ctx, toolutil.ResolveUser(userID), listID)
}

func (t *tools) ownedPair(ctx context.Context, in ListVideoInput) error {
	if in.VideoID == "" {
		return errors.New("video_id is required")
	}
	if _, err := t.owned(ctx, in.UserID, in.ListID); err != nil {
		return err
	}
	_, err := t.svc.OwnedVideo(ctx, toolutil.ResolveUser(in.UserID), in.VideoID)
	return err
}

func (t *tools) listRename(ctx context.Context, in ListRenameInput) (*StatusResult, error) {
	if _, err := t.owned(ctx, in.UserID, in.ListID); err != nil {
		return nil, err
	}
	if err := t.svc.RenameList(ctx, in.ListID, in.Name); err != nil {
		return nil, err
	}
	return &StatusResult{OK: true, Message: "list renamed"}, nil
}

func (t *tools) listDelete(ctx context.Context, in ListInput) (*StatusResult, error) {
	if _, err := t.owned(ctx, in.UserID, in.ListID); err != nil {
		return nil, err
	}
	if err := t.svc.DeleteList(ctx, in.ListID); err != nil {
		return nil, err
	}
	return &StatusResult{OK: true, Message: "list deleted"}, nil
}

func (t *tools) listAddVideo(ctx context.Context, in ListVideoInput) (*StatusResult, error) {
	if err := t.ownedPair(ctx, in); err != nil {
		return nil, err
	}
	if err := t.svc.AddVideoToList(ctx, in.ListID, in.VideoID); err != nil {
		return nil, err
	}
	return &StatusResult{OK: true, Message: "video added to list"}, nil
}

// listRemoveVideo accepts a video id that no longer exists so dangling ids
// can be dropped; a foreign video is not found.
func (t *tools) listRemoveVideo(ctx context.Context, in ListVideoInput) (*StatusResult, error) {
	if in.VideoID == "" {
		return nil, errors.New("video_id is required")
	}
	if _, err := t.owned(ctx, in.UserID, in.ListID); err != nil {
		return nil, err
	}
	if _, err := t.svc.UnlinkableVideo(ctx, toolutil.ResolveUser(in.UserID), in.VideoID); err != nil {
		return nil, err
	}
	if err := t.svc.RemoveVideoFromList(ctx, in.ListID, in.VideoID); err != nil {
		return nil, err
	}
	return &StatusResult{OK: true, Message: "video removed from list"}, nil
}

func (t *tools) listGet(ctx context.Context, in ListInput) (*ListsResult, error) {
	if in.ListID != "" {
		l, err := t.owned(ctx, in.UserID, in.ListID)
		if err != nil {
			return nil, err
		}
		return &ListsResult{Lists: []store.List{*l}, Total: 1}, nil
	}
	lists, err := t.svc.GetUserLists(ctx, toolutil.ResolveUser(in.UserID))
	if err != nil {
		return nil, err
	}
	return &ListsResult{Lists: lists, Total: len(lists)}, nil
}

func (t *tools) listVideos(ctx context.Context, in ListInput) (*VideoListResult, error) {
	l, err := t.owned(ctx, in.UserID, in.ListID)
	if err != nil {
		return nil, err
	}
	videos, err := t.svc.GetListVideos(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	views := toolutil.NewVideoViews(videos, map[string]string{l.ID: l.Name})
	return &VideoListResult{Videos: views, Total: len(views)}, nil
}
