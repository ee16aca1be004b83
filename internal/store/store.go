// Package store is the repository boundary for videos and lists.
// Backends (SQLite, PostgreSQL, Redis) keep both collections as JSON documents
// keyed by a store-assigned id and decode every read through one validation step.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Collection names.
const (
	CollectionVideos = "videos"
	CollectionLists  = "lists"
)

var (
	// ErrNotFound indicates the referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidDocument indicates a stored document failed schema validation.
	ErrInvalidDocument = errors.New("invalid document")
)

// Video is a saved link to an externally hosted video.
type Video struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	IsFavorite bool      `json:"isFavorite"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
	ListID     string    `json:"listId,omitempty"`
}

// List is a user-defined, ordered grouping of video ids.
type List struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	UserID string   `json:"userId"`
	Videos []string `json:"videos"`
}

// VideoQuery filters QueryVideos. UserID is required.
type VideoQuery struct {
	UserID        string
	FavoritesOnly bool
}

// VideoPatch lists the fields to change; nil fields are left as they are.
// ListID pointing to "" clears the list reference.
type VideoPatch struct {
	Title      *string
	URL        *string
	IsFavorite *bool
	ListID     *string
}

// ListPatch lists the changes to a list. Videos replaces the whole sequence;
// AddVideos and RemoveVideos have array-union / array-remove semantics and are
// applied after Videos.
type ListPatch struct {
	Name         *string
	Videos       *[]string
	AddVideos    []string
	RemoveVideos []string
}

// Store is the document store the library layer works against.
// Update of a missing document returns ErrNotFound; Delete of a missing
// document is a no-op.
type Store interface {
	GetVideo(ctx context.Context, id string) (*Video, error)
	// GetVideos returns the videos for ids in the given order, skipping ids
	// without a document.
	GetVideos(ctx context.Context, ids []string) ([]Video, error)
	GetList(ctx context.Context, id string) (*List, error)
	QueryVideos(ctx context.Context, q VideoQuery) ([]Video, error)
	QueryLists(ctx context.Context, userID string) ([]List, error)

	InsertVideo(ctx context.Context, v Video) (string, error)
	InsertList(ctx context.Context, l List) (string, error)
	UpdateVideo(ctx context.Context, id string, p VideoPatch) error
	UpdateList(ctx context.Context, id string, p ListPatch) error
	DeleteVideo(ctx context.Context, id string) error
	DeleteList(ctx context.Context, id string) error

	// Commit applies all batch operations atomically: either every write
	// lands or none does.
	Commit(ctx context.Context, b *Batch) error

	Close() error
}

// OpKind is the kind of write in a Batch.
type OpKind int

const (
	OpUpdate OpKind = iota
	OpDelete
)

// Op is a single write inside a Batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Video      VideoPatch
	List       ListPatch
}

// Batch collects writes to be committed atomically.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// UpdateVideo queues a video update.
func (b *Batch) UpdateVideo(id string, p VideoPatch) *Batch {
	b.ops = append(b.ops, Op{Kind: OpUpdate, Collection: CollectionVideos, ID: id, Video: p})
	return b
}

// UpdateList queues a list update.
func (b *Batch) UpdateList(id string, p ListPatch) *Batch {
	b.ops = append(b.ops, Op{Kind: OpUpdate, Collection: CollectionLists, ID: id, List: p})
	return b
}

// DeleteVideo queues a video delete.
func (b *Batch) DeleteVideo(id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: CollectionVideos, ID: id})
	return b
}

// DeleteList queues a list delete.
func (b *Batch) DeleteList(id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: CollectionLists, ID: id})
	return b
}

// Ops returns the queued operations in order.
func (b *Batch) Ops() []Op { return b.ops }

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

func newID() string { return uuid.NewString() }

// ApplyVideoPatch applies p to v in place.
func ApplyVideoPatch(v *Video, p VideoPatch) {
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.URL != nil {
		v.URL = *p.URL
	}
	if p.IsFavorite != nil {
		v.IsFavorite = *p.IsFavorite
	}
	if p.ListID != nil {
		v.ListID = *p.ListID
	}
}

// ApplyListPatch applies p to l in place.
func ApplyListPatch(l *List, p ListPatch) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Videos != nil {
		l.Videos = slices.Clone(*p.Videos)
	}
	for _, id := range p.AddVideos {
		if !slices.Contains(l.Videos, id) {
			l.Videos = append(l.Videos, id)
		}
	}
	if len(p.RemoveVideos) > 0 {
		l.Videos = slices.DeleteFunc(l.Videos, func(id string) bool {
			return slices.Contains(p.RemoveVideos, id)
		})
	}
	if l.Videos == nil {
		l.Videos = []string{}
	}
}

// StoreError wraps a backend failure with the operation and document it concerned.
type StoreError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store: %s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrapErr(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Collection: collection, ID: id, Err: err}
}

// orderVideos returns the videos of byID in the order of ids, skipping missing ones.
func orderVideos(ids []string, byID map[string]Video) []Video {
	out := make([]Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func opName(op Op) string {
	if op.Kind == OpDelete {
		return "delete"
	}
	return "update"
}
