// Package store persists harvest batches to PostgreSQL with idempotent
// upserts: write-once content fields, monotone engagement counters, one
// transaction per account batch.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/types"
)

// ErrPersistence is returned when a batch cannot be committed even after
// one reconnect. The caller rolls on to the next account.
var ErrPersistence = errors.New("persistence failed")

// Config is the persistence endpoint.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

// Store owns the only write capability on the accounts and posts tables.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *zap.Logger
}

// Open connects, verifies the connection and applies migrations.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := runMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("store ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Uint("schema_version", version))

	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch commits one account's harvest in a single transaction: the
// account row first so post rows have their foreign key, then every post.
// On a connection-loss class error it reconnects once and retries the whole
// batch once; a second failure surfaces ErrPersistence.
func (s *Store) SaveBatch(ctx context.Context, batch types.HarvestBatch) (int64, error) {
	rows, err := s.saveBatchOnce(ctx, batch)
	if err == nil {
		return rows, nil
	}
	if ctx.Err() != nil {
		return 0, err
	}

	if !isConnLoss(err) {
		return 0, fmt.Errorf("%w: account %s: %v", ErrPersistence, batch.Account.Handle, err)
	}

	s.logger.Warn("store connection lost, reconnecting once",
		zap.String("handle", batch.Account.Handle), zap.Error(err))
	if err := s.reconnect(); err != nil {
		return 0, fmt.Errorf("%w: reconnect: %v", ErrPersistence, err)
	}

	rows, err = s.saveBatchOnce(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("%w: account %s after reconnect: %v", ErrPersistence, batch.Account.Handle, err)
	}
	return rows, nil
}

func (s *Store) saveBatchOnce(ctx context.Context, batch types.HarvestBatch) (affected int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	accountID, err := upsertAccount(ctx, tx, batch.Account)
	if err != nil {
		return 0, err
	}

	for _, post := range dedupeBatch(batch.Posts) {
		n, err := upsertPost(ctx, tx, accountID, post)
		if err != nil {
			return 0, fmt.Errorf("upsert post %s: %w", post.PostID, err)
		}
		affected += n
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}

// upsertAccountSQL refreshes the account row; an incoming empty display
// name never clobbers a stored one.
const upsertAccountSQL = `
	INSERT INTO accounts (handle, display_name, last_seen_at)
	VALUES ($1, NULLIF($2, ''), now())
	ON CONFLICT (handle) DO UPDATE SET
		display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), accounts.display_name),
		last_seen_at = now()
	RETURNING id`

// upsertPostSQL writes one post. Content fields are write-once: the
// conflict clause touches only the engagement counters, and only upward.
const upsertPostSQL = `
	INSERT INTO posts (post_id, account_id, body, created_at, url,
		likes, reposts, replies, is_repost, original_author, truncated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
	ON CONFLICT (post_id) DO UPDATE SET
		likes = GREATEST(posts.likes, EXCLUDED.likes),
		reposts = GREATEST(posts.reposts, EXCLUDED.reposts),
		replies = GREATEST(posts.replies, EXCLUDED.replies)`

// upgradeBodySQL is the one sanctioned content rewrite: a row stored
// clipped takes a strictly fuller body and drops its truncated flag.
const upgradeBodySQL = `
	UPDATE posts SET body = $2, truncated = FALSE
	WHERE post_id = $1 AND truncated AND char_length($2) > char_length(body)`

// upsertAccount inserts or refreshes the account row and returns its key.
func upsertAccount(ctx context.Context, tx *sql.Tx, account types.Account) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, upsertAccountSQL, account.Handle, account.DisplayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert account %s: %w", account.Handle, err)
	}
	return id, nil
}

// upsertPost writes one post, then applies the body upgrade when this
// observation carries a full body.
func upsertPost(ctx context.Context, tx *sql.Tx, accountID int64, p types.Post) (int64, error) {
	var createdAt any
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC()
	}

	res, err := tx.ExecContext(ctx, upsertPostSQL,
		p.PostID, accountID, p.Body, createdAt, p.URL,
		p.Likes, p.Reposts, p.Replies, p.IsRepost, p.OriginalAuthor, p.Truncated)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	if !p.Truncated {
		if _, err = tx.ExecContext(ctx, upgradeBodySQL, p.PostID, p.Body); err != nil {
			return 0, err
		}
	}

	return n, nil
}

// dedupeBatch drops intra-batch duplicate post ids, keeping the first
// observation. The harvester already deduplicates; this guards the store's
// own contract.
func dedupeBatch(posts []types.Post) []types.Post {
	seen := make(map[string]struct{}, len(posts))
	out := posts[:0:0]
	for _, p := range posts {
		if _, dup := seen[p.PostID]; dup {
			continue
		}
		seen[p.PostID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// reconnect tears down the pool and dials fresh.
func (s *Store) reconnect() error {
	s.db.Close()
	db, err := sql.Open("postgres", s.cfg.DSN())
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	s.db = db
	s.logger.Info("store reconnected")
	return nil
}

// connLossMarkers match the error strings Postgres drivers produce when the
// server went away under an open connection.
var connLossMarkers = []string{
	"server has gone away",
	"connection reset",
	"broken pipe",
	"connection refused",
	"the database system is shutting down",
	"terminating connection",
	"bad connection",
	"unexpected eof",
}

// isConnLoss reports whether err looks like a lost server connection rather
// than a statement-level failure.
func isConnLoss(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range connLossMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
