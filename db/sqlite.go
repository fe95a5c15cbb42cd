// Package db archives fetched posts in SQLite. Trends are never stored.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/trend-whisperer/db/migrations"
	"github.com/brettboylen/trend-whisperer/models"
)

const postColumns = `id, title, self_text, author, subreddit, url, permalink,
	created_utc, created_at, score, num_comments`

// Database provides methods for storing and retrieving Reddit posts
type Database struct {
	db    *sql.DB
	mutex sync.RWMutex
	log   *logrus.Logger
	now   func() time.Time
}

// NewDatabase opens the SQLite archive at dbPath and migrates it to the latest schema
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.Run(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{
		db:  db,
		log: log,
		now: time.Now,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.db.Close()
}

// SavePosts upserts posts in a single transaction and returns how many were written
func (d *Database) SavePosts(ctx context.Context, posts []models.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR REPLACE INTO posts (`+postColumns+`, archived_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	archivedAt := d.now().UTC()
	for i := range posts {
		post := &posts[i]
		_, err := stmt.ExecContext(ctx,
			post.ID, post.Title, post.SelfText, post.Author, post.Subreddit, post.URL, post.Permalink,
			post.CreatedUTC, post.Created().UTC(), post.Score, post.NumComments, archivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save post %s: %w", post.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit posts: %w", err)
	}

	d.log.WithField("count", len(posts)).Debug("Archived posts")
	return len(posts), nil
}

// GetTotalPosts returns the total number of posts in the database
func (d *Database) GetTotalPosts(ctx context.Context) (int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get total posts: %w", err)
	}

	return count, nil
}

// GetTopPostsByScore returns the top N posts by score
func (d *Database) GetTopPostsByScore(ctx context.Context, limit int) ([]models.Post, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT `+postColumns+`
	FROM posts
	ORDER BY score DESC, id ASC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top posts: %w", err)
	}

	return scanPosts(rows)
}

// GetSubredditPostCounts returns the N subreddits with the most archived posts
func (d *Database) GetSubredditPostCounts(ctx context.Context, limit int) (map[string]int, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT subreddit, COUNT(*) as post_count
	FROM posts
	GROUP BY subreddit
	ORDER BY post_count DESC, subreddit ASC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subreddit counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var subreddit string
		var count int

		if err := rows.Scan(&subreddit, &count); err != nil {
			return nil, fmt.Errorf("failed to scan subreddit post count: %w", err)
		}

		counts[subreddit] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return counts, nil
}

// FetchPosts returns the newest archived posts of a subreddit, so the archive
// can replace the live fetcher
func (d *Database) FetchPosts(ctx context.Context, subreddit string, limit int) ([]models.Post, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
	SELECT `+postColumns+`
	FROM posts
	WHERE subreddit = ? COLLATE NOCASE
	ORDER BY created_utc DESC
	LIMIT ?
	`, subreddit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts for subreddit %s: %w", subreddit, err)
	}

	return scanPosts(rows)
}

func scanPosts(rows *sql.Rows) ([]models.Post, error) {
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		var post models.Post
		var selfText, url sql.NullString

		err := rows.Scan(
			&post.ID, &post.Title, &selfText, &post.Author, &post.Subreddit, &url, &post.Permalink,
			&post.CreatedUTC, &post.CreatedAt, &post.Score, &post.NumComments,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		post.SelfText = selfText.String
		post.URL = url.String
		post.CreatedAt = post.CreatedAt.UTC()
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}
