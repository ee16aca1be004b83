package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS videos (
		id      TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		doc     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_user ON videos(user_id)`,
	`CREATE TABLE IF NOT EXISTS lists (
		id      TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		doc     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lists_user ON lists(user_id)`,
}

// SQLite stores documents in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (or creates) the SQLite database at path and initializes the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("sqlite: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: init schema: %w", err)
		}
	}
	slog.Info("sqlite store opened", slog.String("path", path))
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) GetVideo(ctx context.Context, id string) (*Video, error) {
	raw, err := sqliteGetDoc(ctx, s.db, CollectionVideos, id)
	if err != nil {
		return nil, wrapErr("get", CollectionVideos, id, err)
	}
	v, err := decodeVideo(id, raw)
	if err != nil {
		return nil, wrapErr("get", CollectionVideos, id, err)
	}
	return &v, nil
}

func (s *SQLite) GetVideos(ctx context.Context, ids []string) ([]Video, error) {
	if len(ids) == 0 {
		return []Video{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM videos WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, wrapErr("multi-get", CollectionVideos, "", err)
	}
	byID, err := scanVideos(rows)
	if err != nil {
		return nil, wrapErr("multi-get", CollectionVideos, "", err)
	}
	return orderVideos(ids, byID), nil
}

func (s *SQLite) GetList(ctx context.Context, id string) (*List, error) {
	raw, err := sqliteGetDoc(ctx, s.db, CollectionLists, id)
	if err != nil {
		return nil, wrapErr("get", CollectionLists, id, err)
	}
	l, err := decodeList(id, raw)
	if err != nil {
		return nil, wrapErr("get", CollectionLists, id, err)
	}
	return &l, nil
}

func (s *SQLite) QueryVideos(ctx context.Context, q VideoQuery) ([]Video, error) {
	query := `SELECT id, doc FROM videos WHERE user_id = ?`
	if q.FavoritesOnly {
		query += ` AND json_extract(doc, '$.isFavorite') = 1`
	}
	query += ` ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query, q.UserID)
	if err != nil {
		return nil, wrapErr("query", CollectionVideos, "", err)
	}
	videos, err := scanVideoList(rows)
	if err != nil {
		return nil, wrapErr("query", CollectionVideos, "", err)
	}
	return videos, nil
}

func (s *SQLite) QueryLists(ctx context.Context, userID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM lists WHERE user_id = ? ORDER BY rowid`, userID)
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

func (s *SQLite) InsertVideo(ctx context.Context, v Video) (string, error) {
	v.ID = newID()
	raw, err := encodeVideo(v)
	if err != nil {
		return "", wrapErr("insert", CollectionVideos, v.ID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (id, user_id, doc) VALUES (?, ?, ?)`, v.ID, v.UserID, string(raw)); err != nil {
		return "", wrapErr("insert", CollectionVideos, v.ID, err)
	}
	return v.ID, nil
}

func (s *SQLite) InsertList(ctx context.Context, l List) (string, error) {
	l.ID = newID()
	raw, err := encodeList(l)
	if err != nil {
		return "", wrapErr("insert", CollectionLists, l.ID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO lists (id, user_id, doc) VALUES (?, ?, ?)`, l.ID, l.UserID, string(raw)); err != nil {
		return "", wrapErr("insert", CollectionLists, l.ID, err)
	}
	return l.ID, nil
}

func (s *SQLite) UpdateVideo(ctx context.Context, id string, p VideoPatch) error {
	return s.Commit(ctx, NewBatch().UpdateVideo(id, p))
}

func (s *SQLite) UpdateList(ctx context.Context, id string, p ListPatch) error {
	return s.Commit(ctx, NewBatch().UpdateList(id, p))
}

func (s *SQLite) DeleteVideo(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	return wrapErr("delete", CollectionVideos, id, err)
}

func (s *SQLite) DeleteList(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	return wrapErr("delete", CollectionLists, id, err)
}

// Commit runs every batch operation inside one transaction.
func (s *SQLite) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("commit", "batch", "", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, op := range b.Ops() {
		if err := sqliteApply(ctx, tx, op); err != nil {
			return wrapErr(opName(op), op.Collection, op.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit", "batch", "", err)
	}
	return nil
}

func sqliteApply(ctx context.Context, q sqlQuerier, op Op) error {
	table := op.Collection
	if table != CollectionVideos && table != CollectionLists {
		return fmt.Errorf("unknown collection %q", table)
	}
	if op.Kind == OpDelete {
		_, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, op.ID)
		return err
	}

	raw, err := sqliteGetDoc(ctx, q, table, op.ID)
	if err != nil {
		return err
	}
	updated, err := patchDoc(op, raw)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE `+table+` SET doc = ? WHERE id = ?`, string(updated), op.ID)
	return err
}

func sqliteGetDoc(ctx context.Context, q sqlQuerier, table, id string) ([]byte, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT doc FROM `+table+` WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func scanVideos(rows *sql.Rows) (map[string]Video, error) {
	videos, err := scanVideoList(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	return byID, nil
}

func scanVideoList(rows *sql.Rows) ([]Video, error) {
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
