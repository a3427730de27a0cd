package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup or transition targets a missing row.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by id: %w", err)
	}
	return user, nil
}

const feedbackColumns = `id, author_id, text, status, is_assistance_request, submitted_at, reviewed_at, approved_at, rejected_at`

func (s *PostgresStore) InsertFeedback(ctx context.Context, item FeedbackItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, author_id, text, status, is_assistance_request, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.AuthorID, item.Text, item.Status, item.IsAssistanceRequest, item.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFeedback(ctx context.Context, id string) (FeedbackItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id)
	item, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FeedbackItem{}, ErrNotFound
	}
	if err != nil {
		return FeedbackItem{}, fmt.Errorf("get feedback: %w", err)
	}
	return item, nil
}

// UpdateFeedbackStatus applies a moderation transition in one statement so
// concurrent transitions on the same row are serialized by the row lock.
// The matching timestamp column is only set if it is still NULL, so a
// re-invoked transition never overwrites history.
func (s *PostgresStore) UpdateFeedbackStatus(ctx context.Context, id, status string, now time.Time) (FeedbackItem, error) {
	var column string
	switch status {
	case StatusReviewed:
		column = "reviewed_at"
	case StatusApproved:
		column = "approved_at"
	case StatusRejected:
		column = "rejected_at"
	default:
		return FeedbackItem{}, fmt.Errorf("invalid target status %q", status)
	}

	query := fmt.Sprintf(`
		UPDATE feedback
		SET status = $2, %s = COALESCE(%s, $3)
		WHERE id = $1
		RETURNING `+feedbackColumns, column, column)

	row := s.db.QueryRowContext(ctx, query, id, status, now)
	item, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FeedbackItem{}, ErrNotFound
	}
	if err != nil {
		return FeedbackItem{}, fmt.Errorf("update feedback status: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListFeedback(ctx context.Context) ([]FeedbackItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+feedbackColumns+` FROM feedback ORDER BY submitted_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()
	return collectFeedback(rows)
}

func (s *PostgresStore) ListFeedbackByStatus(ctx context.Context, status string) ([]FeedbackItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+feedbackColumns+` FROM feedback WHERE status = $1 ORDER BY submitted_at DESC, id
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list feedback by status: %w", err)
	}
	defer rows.Close()
	return collectFeedback(rows)
}

func (s *PostgresStore) DeleteAllFeedback(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM feedback`); err != nil {
		return fmt.Errorf("delete all feedback: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row rowScanner) (FeedbackItem, error) {
	var item FeedbackItem
	err := row.Scan(
		&item.ID,
		&item.AuthorID,
		&item.Text,
		&item.Status,
		&item.IsAssistanceRequest,
		&item.SubmittedAt,
		&item.ReviewedAt,
		&item.ApprovedAt,
		&item.RejectedAt,
	)
	return item, err
}

func collectFeedback(rows *sql.Rows) ([]FeedbackItem, error) {
	items := []FeedbackItem{}
	for rows.Next() {
		item, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
