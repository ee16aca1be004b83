package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// videoDoc is the stored shape of a video. Pointer fields let decodeVideo
// tell a missing field from a zero value.
type videoDoc struct {
	Title      *string `json:"title"`
	URL        *string `json:"url"`
	IsFavorite *bool   `json:"isFavorite"`
	UserID     *string `json:"userId"`
	CreatedAt  *string `json:"createdAt"`
	ListID     *string `json:"listId,omitempty"`
}

type listDoc struct {
	Name   *string   `json:"name"`
	UserID *string   `json:"userId"`
	Videos *[]string `json:"videos"`
}

func encodeVideo(v Video) ([]byte, error) {
	doc := videoDoc{
		Title:      &v.Title,
		URL:        &v.URL,
		IsFavorite: &v.IsFavorite,
		UserID:     &v.UserID,
		CreatedAt:  Ptr(v.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}
	if v.ListID != "" {
		doc.ListID = &v.ListID
	}
	return json.Marshal(doc)
}

func encodeList(l List) ([]byte, error) {
	videos := l.Videos
	if videos == nil {
		videos = []string{}
	}
	return json.Marshal(listDoc{Name: &l.Name, UserID: &l.UserID, Videos: &videos})
}

// decodeVideo validates a stored video document and returns the typed entity.
func decodeVideo(id string, raw []byte) (Video, error) {
	var doc videoDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Video{}, fmt.Errorf("%w: videos/%s: %v", ErrInvalidDocument, id, err)
	}
	var missing []string
	if doc.Title == nil {
		missing = append(missing, "title")
	}
	if doc.URL == nil {
		missing = append(missing, "url")
	}
	if doc.UserID == nil || *doc.UserID == "" {
		missing = append(missing, "userId")
	}
	if doc.CreatedAt == nil {
		missing = append(missing, "createdAt")
	}
	if len(missing) > 0 {
		return Video{}, fmt.Errorf("%w: videos/%s: missing %s", ErrInvalidDocument, id, strings.Join(missing, ", "))
	}
	createdAt, err := time.Parse(time.RFC3339Nano, *doc.CreatedAt)
	if err != nil {
		return Video{}, fmt.Errorf("%w: videos/%s: createdAt: %v", ErrInvalidDocument, id, err)
	}
	v := Video{
		ID:        id,
		Title:     *doc.Title,
		URL:       *doc.URL,
		UserID:    *doc.UserID,
		CreatedAt: createdAt,
	}
	if doc.IsFavorite != nil {
		v.IsFavorite = *doc.IsFavorite
	}
	if doc.ListID != nil {
		v.ListID = *doc.ListID
	}
	return v, nil
}

// decodeList validates a stored list document. A missing videos array decodes as empty.
func decodeList(id string, raw []byte) (List, error) {
	var doc listDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return List{}, fmt.Errorf("%w: lists/%s: %v", ErrInvalidDocument, id, err)
	}
	if doc.Name == nil || doc.UserID == nil || *doc.UserID == "" {
		return List{}, fmt.Errorf("%w: lists/%s: missing name or userId", ErrInvalidDocument, id)
	}
	l := List{ID: id, Name: *doc.Name, UserID: *doc.UserID, Videos: []string{}}
	if doc.Videos != nil {
		l.Videos = *doc.Videos
	}
	return l, nil
}

// skipInvalid logs a document that failed validation during a query.
func skipInvalid(collection, id string, err error) {
	slog.Warn("store: skipping invalid document",
		slog.String("collection", collection),
		slog.String("id", id),
		slog.Any("error", err))
}

// patchDoc decodes a stored document, applies the operation's patch and re-encodes it.
func patchDoc(op Op, raw []byte) ([]byte, error) {
	switch op.Collection {
	case CollectionVideos:
		v, err := decodeVideo(op.ID, raw)
		if err != nil {
			return nil, err
		}
		ApplyVideoPatch(&v, op.Video)
		return encodeVideo(v)
	case CollectionLists:
		l, err := decodeList(op.ID, raw)
		if err != nil {
			return nil, err
		}
		ApplyListPatch(&l, op.List)
		return encodeList(l)
	}
	return nil, fmt.Errorf("unknown collection %q", op.Collection)
}
