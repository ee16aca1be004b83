package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic-lock retries in Commit.
const maxTxRetries = 5

// Redis keeps each document as a JSON string and a per-user sorted set of ids
// (scored by an insertion counter) for the query-by-owner reads.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// OpenRedis connects to redisURL. prefix namespaces every key.
func OpenRedis(ctx context.Context, redisURL, prefix string) (*Redis, error) {
	if redisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if prefix == "" {
		prefix = "vidmark"
	}
	slog.Info("redis store connected", slog.String("addr", opts.Addr), slog.String("prefix", prefix))
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) docKey(collection, id string) string {
	return r.prefix + ":" + collection + ":" + id
}

func (r *Redis) indexKey(collection, userID string) string {
	return r.prefix + ":user:" + userID + ":" + collection
}

// seqKey holds the insertion counter used as the owner index score.
func (r *Redis) seqKey() string {
	return r.prefix + ":seq"
}

// redisGetter is satisfied by *redis.Client and *redis.Tx.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) getDoc(ctx context.Context, c redisGetter, collection, id string) ([]byte, error) {
	raw, err := c.Get(ctx, r.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (r *Redis) GetVideo(ctx context.Context, id string) (*Video, error) {
	raw, err := r.getDoc(ctx, r.rdb, CollectionVideos, id)
	if err != nil {
		return nil, wrapErr("get", CollectionVideos, id, err)
	}
	v, err := decodeVideo(id, raw)
	if err != nil {
		return nil, wrapErr("get", CollectionVideos, id, err)
	}
	return &v, nil
}

func (r *Redis) GetVideos(ctx context.Context, ids []string) ([]Video, error) {
	videos, err := r.mgetVideos(ctx, ids)
	if err != nil {
		return nil, wrapErr("multi-get", CollectionVideos, "", err)
	}
	return videos, nil
}

// mgetVideos fetches ids with a single MGET, keeping order and skipping missing or invalid documents.
func (r *Redis) mgetVideos(ctx context.Context, ids []string) ([]Video, error) {
	videos := []Video{}
	if len(ids) == 0 {
		return videos, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(CollectionVideos, id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			continue
		}
		v, err := decodeVideo(ids[i], []byte(s))
		if err != nil {
			skipInvalid(CollectionVideos, ids[i], err)
			continue
		}
		videos = append(videos, v)
	}
	return videos, nil
}

func (r *Redis) GetList(ctx context.Context, id string) (*List, error) {
	raw, err := r.getDoc(ctx, r.rdb, CollectionLists, id)
	if err != nil {
		return nil, wrapErr("get", CollectionLists, id, err)
	}
	l, err := decodeList(id, raw)
	if err != nil {
		return nil, wrapErr("get", CollectionLists, id, err)
	}
	return &l, nil
}

func (r *Redis) QueryVideos(ctx context.Context, q VideoQuery) ([]Video, error) {
	ids, err := r.rdb.ZRange(ctx, r.indexKey(CollectionVideos, q.UserID), 0, -1).Result()
	if err != nil {
		return nil, wrapErr("query", CollectionVideos, "", err)
	}
	videos, err := r.mgetVideos(ctx, ids)
	if err != nil {
		return nil, wrapErr("query", CollectionVideos, "", err)
	}
	out := videos[:0]
	for _, v := range videos {
		// The index may lag a document whose owner field was rewritten by hand.
		if v.UserID != q.UserID {
			continue
		}
		if q.FavoritesOnly && !v.IsFavorite {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Redis) QueryLists(ctx context.Context, userID string) ([]List, error) {
	ids, err := r.rdb.ZRange(ctx, r.indexKey(CollectionLists, userID), 0, -1).Result()
	if err != nil {
		return nil, wrapErr("query", CollectionLists, "", err)
	}
	lists := []List{}
	if len(ids) == 0 {
		return lists, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(CollectionLists, id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("query", CollectionLists, "", err)
	}
	for i, val := range vals {
		s, ok := val.(string)
		if !ok {
			continue
		}
		l, err := decodeList(ids[i], []byte(s))
		if err != nil {
			skipInvalid(CollectionLists, ids[i], err)
			continue
		}
		if l.UserID == userID {
			lists = append(lists, l)
		}
	}
	return lists, nil
}

// insert stores the document and indexes it under its owner. Index scores
// come from a shared INCR counter so owner queries return insertion order.
func (r *Redis) insert(ctx context.Context, collection, id, userID string, raw []byte) error {
	seq, err := r.rdb.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.docKey(collection, id), raw, 0)
		pipe.ZAdd(ctx, r.indexKey(collection, userID), redis.Z{
			Score:  float64(seq),
			Member: id,
		})
		return nil
	})
	return err
}

func (r *Redis) InsertVideo(ctx context.Context, v Video) (string, error) {
	v.ID = newID()
	raw, err := encodeVideo(v)
	if err == nil {
		err = r.insert(ctx, CollectionVideos, v.ID, v.UserID, raw)
	}
	if err != nil {
		return "", wrapErr("insert", CollectionVideos, v.ID, err)
	}
	return v.ID, nil
}

func (r *Redis) InsertList(ctx context.Context, l List) (string, error) {
	l.ID = newID()
	raw, err := encodeList(l)
	if err == nil {
		err = r.insert(ctx, CollectionLists, l.ID, l.UserID, raw)
	}
	if err != nil {
		return "", wrapErr("insert", CollectionLists, l.ID, err)
	}
	return l.ID, nil
}

func (r *Redis) UpdateVideo(ctx context.Context, id string, p VideoPatch) error {
	return r.Commit(ctx, NewBatch().UpdateVideo(id, p))
}

func (r *Redis) UpdateList(ctx context.Context, id string, p ListPatch) error {
	return r.Commit(ctx, NewBatch().UpdateList(id, p))
}

func (r *Redis) DeleteVideo(ctx context.Context, id string) error {
	return r.Commit(ctx, NewBatch().DeleteVideo(id))
}

func (r *Redis) DeleteList(ctx context.Context, id string) error {
	return r.Commit(ctx, NewBatch().DeleteList(id))
}

// redisDoc is the pending state of one document inside a Commit.
type redisDoc struct {
	collection string
	id         string
	raw        []byte
	deleted    bool
	userID     string
}

// Commit watches every touched document, computes the new states and writes
// them in one MULTI/EXEC. A concurrent write to a watched key retries the batch.
func (r *Redis) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	keys := make([]string, 0, b.Len())
	for _, op := range b.Ops() {
		keys = append(keys, r.docKey(op.Collection, op.ID))
	}

	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			return r.commitTx(ctx, tx, b)
		}, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		slog.Debug("redis: commit conflict, retrying", slog.Int("attempt", attempt+1))
	}
	if err != nil {
		var se *StoreError
		if errors.As(err, &se) {
			return err
		}
		return wrapErr("commit", "batch", "", err)
	}
	return nil
}

func (r *Redis) commitTx(ctx context.Context, tx *redis.Tx, b *Batch) error {
	state := make(map[string]*redisDoc)
	var order []string

	load := func(op Op) (*redisDoc, error) {
		key := r.docKey(op.Collection, op.ID)
		if d, ok := state[key]; ok {
			return d, nil
		}
		d := &redisDoc{collection: op.Collection, id: op.ID}
		raw, err := r.getDoc(ctx, tx, op.Collection, op.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			d.deleted = true
		case err != nil:
			return nil, err
		default:
			d.raw = raw
			d.userID = docOwner(raw)
		}
		state[key] = d
		order = append(order, key)
		return d, nil
	}

	for _, op := range b.Ops() {
		if op.Collection != CollectionVideos && op.Collection != CollectionLists {
			return wrapErr(opName(op), op.Collection, op.ID, fmt.Errorf("unknown collection %q", op.Collection))
		}
		d, err := load(op)
		if err != nil {
			return wrapErr(opName(op), op.Collection, op.ID, err)
		}
		if op.Kind == OpDelete {
			d.deleted = true
			continue
		}
		if d.deleted {
			return wrapErr("update", op.Collection, op.ID, ErrNotFound)
		}
		updated, err := patchDoc(op, d.raw)
		if err != nil {
			return wrapErr("update", op.Collection, op.ID, err)
		}
		d.raw = updated
	}

	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range order {
			d := state[key]
			if d.deleted {
				pipe.Del(ctx, key)
				if d.userID != "" {
					pipe.ZRem(ctx, r.indexKey(d.collection, d.userID), d.id)
				}
				continue
			}
			pipe.Set(ctx, key, d.raw, 0)
		}
		return nil
	})
	return err
}

// docOwner extracts userId from a stored document without full validation.
func docOwner(raw []byte) string {
	var owner struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(raw, &owner); err != nil {
		return ""
	}
	return owner.UserID
}
