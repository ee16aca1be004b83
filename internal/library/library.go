// Package library keeps videos and lists consistent with each other on top of
// a store.Store. Only AddVideoToList is atomic across documents; the other
// two-step flows undo their first step when the second one fails.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anatolykoptev/go_vidmark/internal/engine"
	"github.com/anatolykoptev/go_vidmark/internal/store"
)

var (
	// ErrInvalidInput is returned for missing or blank required attributes.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPartialConsistency is returned when a two-step update failed half way
	// and its compensating write failed too, leaving the two sides out of sync.
	ErrPartialConsistency = errors.New("partial consistency: list and video disagree")
)

// Service is the integrity layer. It is safe for concurrent use as long as
// the underlying store is.
type Service struct {
	st  store.Store
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service over st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{st: st, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() store.Store { return s.st }

// track runs fn under engine.TrackOperation and wraps its error with the op name.
func (s *Service) track(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := engine.TrackOperation(ctx, "library."+op, fn); err != nil {
		return fmt.Errorf("library: %s: %w", op, err)
	}
	return nil
}

func invalid(op, msg string) error {
	return fmt.Errorf("library: %s: %w: %s", op, ErrInvalidInput, msg)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// OwnedVideo returns the video when it exists and belongs to userID.
// A video owned by someone else is reported as store.ErrNotFound.
func (s *Service) OwnedVideo(ctx context.Context, userID, videoID string) (*store.Video, error) {
	var v *store.Video
	err := s.track(ctx, "get video", func(ctx context.Context) error {
		var err error
		v, err = s.st.GetVideo(ctx, videoID)
		if err != nil {
			return err
		}
		if v.UserID != userID {
			return fmt.Errorf("videos/%s: %w", videoID, store.ErrNotFound)
		}
		return nil
	})
	return v, err
}

// OwnedList returns the list when it exists and belongs to userID.
// A list owned by someone else is reported as store.ErrNotFound.
func (s *Service) OwnedList(ctx context.Context, userID, listID string) (*store.List, error) {
	var l *store.List
	err := s.track(ctx, "get list", func(ctx context.Context) error {
		var err error
		l, err = s.st.GetList(ctx, listID)
		if err != nil {
			return err
		}
		if l.UserID != userID {
			return fmt.Errorf("lists/%s: %w", listID, store.ErrNotFound)
		}
		return nil
	})
	return l, err
}

// UnlinkableVideo is OwnedVideo for unlink paths: a video that no longer
// exists yields (nil, nil) so its dangling id can still be dropped from a
// list. A video owned by someone else is still reported as store.ErrNotFound.
func (s *Service) UnlinkableVideo(ctx context.Context, userID, videoID string) (*store.Video, error) {
	var v *store.Video
	err := s.track(ctx, "get video", func(ctx context.Context) error {
		var err error
		v, err = s.st.GetVideo(ctx, videoID)
		if errors.Is(err, store.ErrNotFound) {
			v = nil
			return nil
		}
		if err != nil {
			return err
		}
		if v.UserID != userID {
			return fmt.Errorf("videos/%s: %w", videoID, store.ErrNotFound)
		}
		return nil
	})
	return v, err
}
