package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/github-org-mirror/internal/domain"
	"github.com/kurihiro0119/github-org-mirror/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		node_id TEXT PRIMARY KEY,
		id BIGINT NOT NULL,
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
		authored_at TIMESTAMPTZ,
		committer_name TEXT,
		committer_email TEXT,
		committed_at TIMESTAMPTZ,
		exported_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (repository, sha)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_repository_branch ON commits(repository, branch);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveSnapshot upserts the snapshot in a single transaction
func (s *postgresStorage) SaveSnapshot(ctx context.Context, snapshot domain.Snapshot) error {
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
		INSERT INTO organizations (node_id, id, login, name, url, description, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (node_id) DO UPDATE SET
			id = EXCLUDED.id,
			login = EXCLUDED.login,
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			description = EXCLUDED.description,
			avatar_url = EXCLUDED.avatar_url,
			exported_at = CURRENT_TIMESTAMP
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
		INSERT INTO members (node_id, login, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (node_id) DO UPDATE SET
			login = EXCLUDED.login,
			avatar_url = EXCLUDED.avatar_url,
			exported_at = CURRENT_TIMESTAMP
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
		INSERT INTO repositories (node_id, owner, name, full_name, url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (node_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			full_name = EXCLUDED.full_name,
			url = EXCLUDED.url,
			exported_at = CURRENT_TIMESTAMP
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
		INSERT INTO commits (
			repository, sha, branch, url, message,
			author_name, author_email, authored_at,
			committer_name, committer_email, committed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (repository, sha) DO NOTHING
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
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
