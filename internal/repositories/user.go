package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crossplay/internal/models"
	"github.com/desertthunder/crossplay/internal/shared"
)

// UserRepository resolves and reads [models.User] rows.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Resolve returns the id of the user with username, creating the user on first use.
func (r *UserRepository) Resolve(ctx context.Context, username string) (string, error) {
	name, err := models.NormalizeUsername(username)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	insert := `INSERT INTO users (id, username) VALUES (?, ?) ON CONFLICT(username) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, shared.GenerateID(), name); err != nil {
		return "", fmt.Errorf("failed to upsert user: %w", err)
	}

	var id string
	if err := r.db.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", name).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to query user: %w", err)
	}
	return id, nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var (
		user      models.User
		createdAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, "SELECT id, username, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}
	return &user, nil
}

// List retrieves all users ordered by username
func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, username, created_at FROM users ORDER BY username ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var (
			user      models.User
			createdAt sql.NullTime
		)
		if err := rows.Scan(&user.ID, &user.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if createdAt.Valid {
			user.CreatedAt = createdAt.Time
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

// MemberRepository records room membership.
type MemberRepository struct {
	db *sql.DB
}

// NewMemberRepository creates a new [MemberRepository] with the given database connection
func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Add records userID as a member of roomID. Existing memberships are left untouched.
func (r *MemberRepository) Add(ctx context.Context, roomID, userID string) error {
	query := `INSERT OR IGNORE INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, roomID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// List returns the members of roomID in join order.
func (r *MemberRepository) List(ctx context.Context, roomID string) ([]models.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT room_id, user_id, joined_at FROM room_members WHERE room_id = ? ORDER BY joined_at ASC, user_id ASC", roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return members, nil
}
