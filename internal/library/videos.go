package library

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/store"
)

// NewVideo holds the caller-supplied attributes of a video.
type NewVideo struct {
	Title      string
	URL        string
	UserID     string
	IsFavorite bool
	// ListID is stored on the video as given. CreateVideo does not append the
	// video to that list; use AddVideo or AddVideoToList for that.
	ListID string
}

// CreateVideo validates attrs, stamps createdAt and inserts the video.
func (s *Service) CreateVideo(ctx context.Context, attrs NewVideo) (*store.Video, error) {
	switch {
	case blank(attrs.Title):
		return nil, invalid("create video", "title is required")
	case blank(attrs.URL):
		return nil, invalid("create video", "url is required")
	case blank(attrs.UserID):
		return nil, invalid("create video", "userId is required")
	}

	v := store.Video{
		Title:      strings.TrimSpace(attrs.Title),
		URL:        strings.TrimSpace(attrs.URL),
		IsFavorite: attrs.IsFavorite,
		UserID:     attrs.UserID,
		CreatedAt:  s.now().UTC(),
		ListID:     attrs.ListID,
	}
	err := s.track(ctx, "create video", func(ctx context.Context) error {
		id, err := s.st.InsertVideo(ctx, v)
		if err != nil {
			return err
		}
		v.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	engine.IncrVideosCreated()
	slog.Debug("video created", slog.String("id", v.ID), slog.String("user", v.UserID))
	return &v, nil
}

// AddVideo is the add flow: create the video, then append it to listID when
// one is given. If the append fails the new video is deleted again and the
// append error is returned.
func (s *Service) AddVideo(ctx context.Context, attrs NewVideo, listID string) (*store.Video, error) {
	attrs.ListID = ""
	v, err := s.CreateVideo(ctx, attrs)
	if err != nil || listID == "" {
		return v, err
	}

	if err := s.AddVideoToList(ctx, listID, v.ID); err != nil {
		engine.IncrCompensations()
		if derr := s.st.DeleteVideo(ctx, v.ID); derr != nil {
			engine.IncrCompensationFailures()
			slog.Warn("add video: rollback failed",
				slog.String("video", v.ID),
				slog.String("list", listID),
				slog.Any("error", derr))
			return nil, errors.Join(err, ErrPartialConsistency)
		}
		engine.IncrVideosDeleted()
		return nil, err
	}
	v.ListID = listID
	return v, nil
}

// SetFavorite sets the favorite flag of a video.
func (s *Service) SetFavorite(ctx context.Context, videoID string, favorite bool) error {
	return s.track(ctx, "set favorite", func(ctx context.Context) error {
		return s.st.UpdateVideo(ctx, videoID, store.VideoPatch{IsFavorite: store.Ptr(favorite)})
	})
}

// DeleteVideo deletes the video document only. Lists that reference it keep
// the id; see RemoveVideo for the variant that unlinks it as well.
func (s *Service) DeleteVideo(ctx context.Context, videoID string) error {
	err := s.track(ctx, "delete video", func(ctx context.Context) error {
		return s.st.DeleteVideo(ctx, videoID)
	})
	if err == nil {
		engine.IncrVideosDeleted()
	}
	return err
}

// RemoveVideo deletes the video and, in the same batch, removes its id from
// the list it belongs to when that list still exists.
func (s *Service) RemoveVideo(ctx context.Context, videoID string) error {
	err := s.track(ctx, "remove video", func(ctx context.Context) error {
		v, err := s.st.GetVideo(ctx, videoID)
		if err != nil {
			return err
		}
		b := store.NewBatch().DeleteVideo(videoID)
		if v.ListID != "" {
			ok, err := s.listExists(ctx, v.ListID)
			if err != nil {
				return err
			}
			if ok {
				b.UpdateList(v.ListID, store.ListPatch{RemoveVideos: []string{videoID}})
			}
		}
		if err := s.st.Commit(ctx, b); err != nil {
			return err
		}
		engine.IncrBatchCommits()
		return nil
	})
	if err == nil {
		engine.IncrVideosDeleted()
	}
	return err
}

// GetUserVideos returns every video owned by userID.
func (s *Service) GetUserVideos(ctx context.Context, userID string) ([]store.Video, error) {
	return s.queryVideos(ctx, "get user videos", store.VideoQuery{UserID: userID})
}

// GetFavoriteVideos returns the videos of userID marked as favorite.
func (s *Service) GetFavoriteVideos(ctx context.Context, userID string) ([]store.Video, error) {
	return s.queryVideos(ctx, "get favorite videos", store.VideoQuery{UserID: userID, FavoritesOnly: true})
}

func (s *Service) queryVideos(ctx context.Context, op string, q store.VideoQuery) ([]store.Video, error) {
	if blank(q.UserID) {
		return nil, invalid(op, "userId is required")
	}
	var out []store.Video
	err := s.track(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = s.st.QueryVideos(ctx, q)
		return err
	})
	return out, err
}

func (s *Service) listExists(ctx context.Context, listID string) (bool, error) {
	_, err := s.st.GetList(ctx, listID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
