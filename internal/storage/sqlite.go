package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Vernoxvernax/Nyaa-Notifications/internal/nyaa"
	"github.com/Vernoxvernax/Nyaa-Notifications/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open creates (or migrates) the sqlite database at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context, destID string) ([]nyaa.Torrent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT torrent_id, domain, title, category, size, magnet_link, uploaded_at,
		        seeders, leechers, completed, comment_count, uploader_name, uploader_role
		 FROM torrents WHERE dest_id = ? ORDER BY torrent_id`, destID)
	if err != nil {
		return nil, fmt.Errorf("storage: load torrents: %w", err)
	}
	defer rows.Close()

	var torrents []nyaa.Torrent
	index := make(map[uint64]int)
	for rows.Next() {
		var t nyaa.Torrent
		var upName, upRole sql.NullString
		if err := rows.Scan(&t.ID, &t.Domain, &t.Title, &t.Category, &t.Size, &t.MagnetLink,
			&t.UploadedAt, &t.Seeders, &t.Leechers, &t.Completed, &t.CommentCount,
			&upName, &upRole); err != nil {
			return nil, fmt.Errorf("storage: scan torrent: %w", err)
		}
		if upName.Valid {
			t.Uploader = &nyaa.User{Username: upName.String, Role: upRole.String}
		}
		index[t.ID] = len(torrents)
		torrents = append(torrents, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: load torrents: %w", err)
	}

	crows, err := s.db.QueryContext(ctx,
		`SELECT torrent_id, username, created_at, role, avatar, banned, uploader,
		        message, edited_at, direct_link, state
		 FROM comments WHERE dest_id = ? ORDER BY torrent_id, created_at`, destID)
	if err != nil {
		return nil, fmt.Errorf("storage: load comments: %w", err)
	}
	defer crows.Close()

	for crows.Next() {
		var torrentID uint64
		var c nyaa.Comment
		var state string
		if err := crows.Scan(&torrentID, &c.User.Username, &c.CreatedAt, &c.User.Role,
			&c.User.Avatar, &c.User.Banned, &c.Uploader, &c.Message, &c.EditedAt,
			&c.DirectLink, &state); err != nil {
			return nil, fmt.Errorf("storage: scan comment: %w", err)
		}
		c.State = nyaa.CommentState(state)
		i, ok := index[torrentID]
		if !ok {
			// Orphan row from an interrupted delete; skip it.
			continue
		}
		torrents[i].Comments = append(torrents[i].Comments, c)
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("storage: load comments: %w", err)
	}
	return torrents, nil
}

// Upsert writes one torrent baseline atomically, replacing the stored
// comment set with the given one.
func (s *sqliteStore) Upsert(ctx context.Context, destID string, t nyaa.Torrent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	var upName, upRole sql.NullString
	if t.Uploader != nil {
		upName = sql.NullString{String: t.Uploader.Username, Valid: true}
		upRole = sql.NullString{String: t.Uploader.Role, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO torrents (dest_id, torrent_id, domain, title, category, size, magnet_link,
		                       uploaded_at, seeders, leechers, completed, comment_count,
		                       uploader_name, uploader_role)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(dest_id, torrent_id) DO UPDATE SET
		   domain=excluded.domain, title=excluded.title, category=excluded.category,
		   size=excluded.size, magnet_link=excluded.magnet_link, uploaded_at=excluded.uploaded_at,
		   seeders=excluded.seeders, leechers=excluded.leechers, completed=excluded.completed,
		   comment_count=excluded.comment_count,
		   uploader_name=excluded.uploader_name, uploader_role=excluded.uploader_role`,
		destID, t.ID, t.Domain, t.Title, t.Category, t.Size, t.MagnetLink,
		t.UploadedAt, t.Seeders, t.Leechers, t.Completed, t.CommentCount, upName, upRole)
	if err != nil {
		return fmt.Errorf("storage: upsert torrent: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE dest_id = ? AND torrent_id = ?`, destID, t.ID); err != nil {
		return fmt.Errorf("storage: clear comments: %w", err)
	}
	for _, c := range t.Comments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments (dest_id, torrent_id, username, created_at, role, avatar,
			                       banned, uploader, message, edited_at, direct_link, state)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			destID, t.ID, c.User.Username, c.CreatedAt, c.User.Role, c.User.Avatar,
			c.User.Banned, c.Uploader, c.Message, c.EditedAt, c.DirectLink, string(c.State)); err != nil {
			return fmt.Errorf("storage: insert comment: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, destID string, torrentID uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE dest_id = ? AND torrent_id = ?`, destID, torrentID); err != nil {
		return fmt.Errorf("storage: delete comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM torrents WHERE dest_id = ? AND torrent_id = ?`, destID, torrentID); err != nil {
		return fmt.Errorf("storage: delete torrent: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) HasBaseline(ctx context.Context, destID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM torrents WHERE dest_id = ?`, destID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage: count baseline: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Subscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, feed, uploads, comments, all_pages, paused, created_at
		 FROM subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: load subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		var created string
		if err := rows.Scan(&sub.ID, &sub.ChatID, &sub.Feed, &sub.Uploads, &sub.Comments,
			&sub.AllPages, &sub.Paused, &created); err != nil {
			return nil, fmt.Errorf("storage: scan subscription: %w", err)
		}
		sub.CreatedAt, _ = time.Parse(time.RFC3339, created)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *sqliteStore) AddSubscription(ctx context.Context, sub Subscription) (int64, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (chat_id, feed, uploads, comments, all_pages, paused, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		sub.ChatID, sub.Feed, sub.Uploads, sub.Comments, sub.AllPages, sub.Paused,
		sub.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("storage: add subscription: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) SetPaused(ctx context.Context, chatID int64, paused bool) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET paused = ? WHERE chat_id = ? AND paused != ?`,
		paused, chatID, paused)
	if err != nil {
		return 0, fmt.Errorf("storage: set paused: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Reset drops a chat's subscriptions and every baseline recorded for
// them, so a later re-watch starts from a clean first run.
func (s *sqliteStore) Reset(ctx context.Context, chatID int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM subscriptions WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, fmt.Errorf("storage: list subscriptions: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("storage: scan subscription id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		destID := SubscriptionDestID(id)
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE dest_id = ?`, destID); err != nil {
			return 0, fmt.Errorf("storage: reset comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM torrents WHERE dest_id = ?`, destID); err != nil {
			return 0, fmt.Errorf("storage: reset torrents: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE chat_id = ?`, chatID); err != nil {
		return 0, fmt.Errorf("storage: delete subscriptions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// SubscriptionDestID is the baseline key of a chat-created
// subscription.
func SubscriptionDestID(id int64) string {
	return fmt.Sprintf("tg:%d", id)
}
