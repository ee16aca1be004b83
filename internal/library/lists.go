package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/store"
)

// CreateList creates an empty list named name for userID.
func (s *Service) CreateList(ctx context.Context, userID, name string) (*store.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("create list", "name is required")
	}
	if blank(userID) {
		return nil, invalid("create list", "userId is required")
	}
	l := store.List{Name: name, UserID: userID, Videos: []string{}}
	err := s.track(ctx, "create list", func(ctx context.Context) error {
		id, err := s.st.InsertList(ctx, l)
		if err != nil {
			return err
		}
		l.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	engine.IncrListsCreated()
	slog.Debug("list created", slog.String("id", l.ID), slog.String("user", userID))
	return &l, nil
}

// GetList returns the list or an error wrapping store.ErrNotFound.
func (s *Service) GetList(ctx context.Context, listID string) (*store.List, error) {
	var l *store.List
	err := s.track(ctx, "get list", func(ctx context.Context) error {
		var err error
		l, err = s.st.GetList(ctx, listID)
		return err
	})
	return l, err
}

// RenameList changes the name of a list.
func (s *Service) RenameList(ctx context.Context, listID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("rename list", "name is required")
	}
	return s.track(ctx, "rename list", func(ctx context.Context) error {
		return s.st.UpdateList(ctx, listID, store.ListPatch{Name: &name})
	})
}

// DeleteList deletes the list document only. Member videos keep their listId.
func (s *Service) DeleteList(ctx context.Context, listID string) error {
	err := s.track(ctx, "delete list", func(ctx context.Context) error {
		return s.st.DeleteList(ctx, listID)
	})
	if err == nil {
		engine.IncrListsDeleted()
	}
	return err
}

// GetUserLists returns every list owned by userID.
func (s *Service) GetUserLists(ctx context.Context, userID string) ([]store.List, error) {
	if blank(userID) {
		return nil, invalid("get user lists", "userId is required")
	}
	var out []store.List
	err := s.track(ctx, "get user lists", func(ctx context.Context) error {
		var err error
		out, err = s.st.QueryLists(ctx, userID)
		return err
	})
	return out, err
}

// GetListVideos returns the videos of a list in list order. Ids without a
// document are skipped; a missing list yields an empty result.
func (s *Service) GetListVideos(ctx context.Context, listID string) ([]store.Video, error) {
	out := []store.Video{}
	err := s.track(ctx, "get list videos", func(ctx context.Context) error {
		l, err := s.st.GetList(ctx, listID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		videos, err := s.st.GetVideos(ctx, l.Videos)
		if err != nil {
			return err
		}
		if n := len(l.Videos) - len(videos); n > 0 {
			slog.Debug("list has dangling video ids", slog.String("list", listID), slog.Int("count", n))
		}
		out = videos
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddVideoToList links a video to a list in one atomic batch: the id is
// union-appended to list.videos and video.listId is set. When the video
// already belonged to another existing list it is removed from that list in
// the same batch.
func (s *Service) AddVideoToList(ctx context.Context, listID, videoID string) error {
	if listID == "" || videoID == "" {
		return invalid("add video to list", "listId and videoId are required")
	}
	err := s.track(ctx, "add video to list", func(ctx context.Context) error {
		v, err := s.st.GetVideo(ctx, videoID)
		if err != nil {
			return err
		}
		b := store.NewBatch().
			UpdateList(listID, store.ListPatch{AddVideos: []string{videoID}}).
			UpdateVideo(videoID, store.VideoPatch{ListID: &listID})
		if prev := v.ListID; prev != "" && prev != listID {
			ok, err := s.listExists(ctx, prev)
			if err != nil {
				return err
			}
			if ok {
				b.UpdateList(prev, store.ListPatch{RemoveVideos: []string{videoID}})
			}
		}
		if err := s.st.Commit(ctx, b); err != nil {
			return err
		}
		engine.IncrBatchCommits()
		return nil
	})
	if err == nil {
		engine.IncrListLinks()
	}
	return err
}

// RemoveVideoFromList unlinks a video from a list with two separate writes:
// video.listId is cleared first, then the id is removed from list.videos.
// If the second write fails the first is reverted. When the revert fails too
// the returned error wraps ErrPartialConsistency and the video stays unlinked
// while the list still references it.
//
// A video that is missing, or whose listId names another list, is left
// untouched and only its id is dropped from list.videos.
func (s *Service) RemoveVideoFromList(ctx context.Context, listID, videoID string) error {
	if listID == "" || videoID == "" {
		return invalid("remove video from list", "listId and videoId are required")
	}
	const op = "remove video from list"

	v, err := s.st.GetVideo(ctx, videoID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.dropFromList(ctx, op, listID, videoID)
	case err != nil:
		return fmt.Errorf("library: %s: %w", op, err)
	}
	if v.ListID != listID {
		return s.dropFromList(ctx, op, listID, videoID)
	}
	prev := v.ListID

	if err := s.track(ctx, op, func(ctx context.Context) error {
		return s.st.UpdateVideo(ctx, videoID, store.VideoPatch{ListID: store.Ptr("")})
	}); err != nil {
		return err
	}

	listErr := s.track(ctx, op, func(ctx context.Context) error {
		return s.st.UpdateList(ctx, listID, store.ListPatch{RemoveVideos: []string{videoID}})
	})
	if listErr == nil {
		engine.IncrListUnlinks()
		return nil
	}

	engine.IncrCompensations()
	if err := s.st.UpdateVideo(ctx, videoID, store.VideoPatch{ListID: &prev}); err != nil {
		engine.IncrCompensationFailures()
		slog.Warn("remove video from list: compensation failed",
			slog.String("video", videoID),
			slog.String("list", listID),
			slog.Any("error", err))
		return fmt.Errorf("%w (compensation: %w): %w", listErr, err, ErrPartialConsistency)
	}
	slog.Debug("remove video from list: reverted video unlink",
		slog.String("video", videoID),
		slog.String("list", listID))
	return listErr
}

// dropFromList removes videoID from list.videos without touching the video.
func (s *Service) dropFromList(ctx context.Context, op, listID, videoID string) error {
	return s.track(ctx, op, func(ctx context.Context) error {
		return s.st.UpdateList(ctx, listID, store.ListPatch{RemoveVideos: []string{videoID}})
	})
}

// ListNames resolves the distinct list ids referenced by videos to list
// names. Ids of lists that no longer exist are left out.
func (s *Service) ListNames(ctx context.Context, videos []store.Video) (map[string]string, error) {
	names := make(map[string]string)
	err := s.track(ctx, "list names", func(ctx context.Context) error {
		seen := make(map[string]bool)
		for _, v := range videos {
			if v.ListID == "" || seen[v.ListID] {
				continue
			}
			seen[v.ListID] = true
			l, err := s.st.GetList(ctx, v.ListID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			names[l.ID] = l.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
