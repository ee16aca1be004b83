package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Postgres stores documents as JSONB rows behind a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpenPostgres creates a pgx pool and runs schema migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &Postgres{pool: pool}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("postgres store connected", slog.String("addr", config.ConnConfig.Host))
	return db, nil
}

func (db *Postgres) Close() error {
	db.pool.Close()
	return nil
}

func (db *Postgres) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := db.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		slog.Info("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

func (db *Postgres) GetVideo(ctx context.Context, id string) (*Video, error) {
	raw, err := pgGetDoc(ctx, db.pool, CollectionVideos, id, false)
	if err != nil {
		return nil, wrapErr("get", CollectionVideos, id, err)
	}
	v, err := decodeVideo(id, raw)
	if err != nil {
		return nil, wrapErr("get", CollectionVideos, id, err)
	}
	return &v, nil
}

func (db *Postgres) GetVideos(ctx context.Context, ids []string) ([]Video, error) {
	if len(ids) == 0 {
		return []Video{}, nil
	}
	rows, err := db.pool.Query(ctx, `SELECT id, doc::text FROM videos WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("multi-get", CollectionVideos, "", err)
	}
	videos, err := pgScanVideos(rows)
	if err != nil {
		return nil, wrapErr("multi-get", CollectionVideos, "", err)
	}
	byID := make(map[string]Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	return orderVideos(ids, byID), nil
}

func (db *Postgres) GetList(ctx context.Context, id string) (*List, error) {
	raw, err := pgGetDoc(ctx, db.pool, CollectionLists, id, false)
	if err != nil {
		return nil, wrapErr("get", CollectionLists, id, err)
	}
	l, err := decodeList(id, raw)
	if err != nil {
		return nil, wrapErr("get", CollectionLists, id, err)
	}
	return &l, nil
}

func (db *Postgres) QueryVideos(ctx context.Context, q VideoQuery) ([]Video, error) {
	query := `SELECT id, doc::text FROM videos WHERE user_id = $1`
	if q.FavoritesOnly {
		query += ` AND (doc->>'isFavorite')::boolean IS TRUE`
	}
	query += ` ORDER BY seq`
	rows, err := db.pool.Query(ctx, query, q.UserID)
	if err != nil {
		return nil, wrapErr("query", CollectionVideos, "", err)
	}
	videos, err := pgScanVideos(rows)
	if err != nil {
		return nil, wrapErr("query", CollectionVideos, "", err)
	}
	return videos, nil
}

func (db *Postgres) QueryLists(ctx context.Context, userID string) ([]List, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, doc::text FROM lists WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, wrapErr("query", CollectionLists, "", err)
	}
	defer rows.Close()

	lists := []List{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrapErr("query", CollectionLists, "", err)
		}
		l, err := decodeList(id, []byte(raw))
		if err != nil {
			skipInvalid(CollectionLists, id, err)
			continue
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query", CollectionLists, "", err)
	}
	return lists, nil
}

func (db *Postgres) InsertVideo(ctx context.Context, v Video) (string, error) {
	v.ID = newID()
	raw, err := encodeVideo(v)
	if err != nil {
		return "", wrapErr("insert", CollectionVideos, v.ID, err)
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO videos (id, user_id, doc) VALUES ($1, $2, $3::jsonb)`, v.ID, v.UserID, string(raw)); err != nil {
		return "", wrapErr("insert", CollectionVideos, v.ID, err)
	}
	return v.ID, nil
}

func (db *Postgres) InsertList(ctx context.Context, l List) (string, error) {
	l.ID = newID()
	raw, err := encodeList(l)
	if err != nil {
		return "", wrapErr("insert", CollectionLists, l.ID, err)
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO lists (id, user_id, doc) VALUES ($1, $2, $3::jsonb)`, l.ID, l.UserID, string(raw)); err != nil {
		return "", wrapErr("insert", CollectionLists, l.ID, err)
	}
	return l.ID, nil
}

func (db *Postgres) UpdateVideo(ctx context.Context, id string, p VideoPatch) error {
	return db.Commit(ctx, NewBatch().UpdateVideo(id, p))
}

func (db *Postgres) UpdateList(ctx context.Context, id string, p ListPatch) error {
	return db.Commit(ctx, NewBatch().UpdateList(id, p))
}

func (db *Postgres) DeleteVideo(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	return wrapErr("delete", CollectionVideos, id, err)
}

func (db *Postgres) DeleteList(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM lists WHERE id = $1`, id)
	return wrapErr("delete", CollectionLists, id, err)
}

// Commit runs the batch in one transaction, locking every updated row.
func (db *Postgres) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapErr("commit", "batch", "", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, op := range b.Ops() {
		if err := pgApply(ctx, tx, op); err != nil {
			return wrapErr(opName(op), op.Collection, op.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapErr("commit", "batch", "", err)
	}
	return nil
}

func pgApply(ctx context.Context, q pgQuerier, op Op) error {
	table := op.Collection
	if table != CollectionVideos && table != CollectionLists {
		return fmt.Errorf("unknown collection %q", table)
	}
	if op.Kind == OpDelete {
		_, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, op.ID)
		return err
	}

	raw, err := pgGetDoc(ctx, q, table, op.ID, true)
	if err != nil {
		return err
	}
	updated, err := patchDoc(op, raw)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `UPDATE `+table+` SET doc = $1::jsonb WHERE id = $2`, string(updated), op.ID)
	return err
}

func pgGetDoc(ctx context.Context, q pgQuerier, table, id string, forUpdate bool) ([]byte, error) {
	query := `SELECT doc::text FROM ` + table + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw string
	err := q.QueryRow(ctx, query, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func pgScanVideos(rows pgx.Rows) ([]Video, error) {
	defer rows.Close()
	videos := []Video{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		v, err := decodeVideo(id, []byte(raw))
		if err != nil {
			skipInvalid(CollectionVideos, id, err)
			continue
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
