package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	"github.com/kurihiro0119/github-org-mirror/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		node_id TEXT PRIMARY KEY,
		id INTEGER NOT NULL,
		login TEXT NOT NULL,
		name TEXT,
		url TEXT,
		description TEXT,
		avatar_url TEXT,
		exported_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS members (
		node_id TEXT PRIMARY KEY,
		login TEXT NOT NULL,
		avatar_url TEXT,
		exported_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS repositories (
		node_id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL,
		url TEXT,
		exported_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_repositories_owner ON repositories(owner);

	CREATE TABLE IF NOT EXISTS commits (
		repository TEXT NOT NULL,
		sha TEXT NOT NULL,
		branch TEXT NOT NULL,
		url TEXT,
		message TEXT,
		author_name TEXT,
		author_email TEXT,
		authored_at TIMESTAMP,
		committer_name TEXT,
		committer_email TEXT,
		committed_at TIMESTAMP,
		exported_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (repository, sha)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_repository_branch ON commits(repository, branch);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSnapshot upserts the snapshot in a single transaction
func (s *sqliteStorage) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveOrganizations(ctx, tx, snapshot.Organizations); err != nil {
		return fmt.Errorf("failed to save organizations: %w", err)
	}
	if err := saveMembers(ctx, tx, snapshot.Members); err != nil {
		return fmt.Errorf("failed to save members: %w", err)
	}
	if err := saveRepositories(ctx, tx, snapshot.Repositories); err != nil {
		return fmt.Errorf("failed to save repositories: %w", err)
	}
	if err := saveCommits(ctx, tx, snapshot.Commits); err != nil {
		return fmt.Errorf("failed to save commits: %w", err)
	}

	return tx.Commit()
}

func saveOrganizations(ctx context.Context, tx *sql.Tx, orgs []domain.Organization) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO organizations (node_id, id, login, name, url, description, avatar_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, org := range orgs {
		var description sql.NullString
		if org.Description != nil {
			description = sql.NullString{String: *org.Description, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, org.NodeID, org.ID, org.Login, org.Name, org.URL, description, org.AvatarURL); err != nil {
			return err
		}
	}
	return nil
}

func saveMembers(ctx context.Context, tx *sql.Tx, members []domain.Member) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO members (node_id, login, avatar_url)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.NodeID, m.Login, m.AvatarURL); err != nil {
			return err
		}
	}
	return nil
}

func saveRepositories(ctx context.Context, tx *sql.Tx, repos []domain.Repository) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO repositories (node_id, owner, name, full_name, url)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range repos {
		if _, err := stmt.ExecContext(ctx, r.NodeID, r.Owner, r.Name, r.FullName, r.URL); err != nil {
			return err
		}
	}
	return nil
}

// saveCommits keeps the first exported attribution of a commit
func saveCommits(ctx context.Context, tx *sql.Tx, commits []domain.Commit) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO commits (
			repository, sha, branch, url, message,
			author_name, author_email, authored_at,
			committer_name, committer_email, committed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range commits {
		_, err := stmt.ExecContext(ctx,
			c.Repository, c.SHA, c.Branch, c.URL, c.Message,
			c.Author.Name, c.Author.Email, nullTime(c.Author.Date),
			c.Committer.Name, c.Committer.Email, nullTime(c.Committer.Date),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
