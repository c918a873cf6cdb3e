package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("conflict")
)

// Role is the account type of a user.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleParent, RoleStudent:
		return true
	default:
		return false
	}
}

// IsTeacher reports whether r is the teacher role.
func (r Role) IsTeacher() bool {
	return r == RoleTeacher
}

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Conversation identifies the two-party chat between a teacher and one
// parent or student inside a classroom.
type Conversation struct {
	ClassroomID int64
	TeacherID   int64
	MemberID    int64
}

// Message represents a persisted chat message.
type Message struct {
	ID             int64
	ClassroomID    int64
	TeacherID      int64
	MemberID       int64
	SenderID       int64
	Body           string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Conversation returns the conversation the message belongs to.
func (m *Message) Conversation() Conversation {
	return Conversation{ClassroomID: m.ClassroomID, TeacherID: m.TeacherID, MemberID: m.MemberID}
}

// SenderIsTeacher reports whether the teacher of the conversation wrote it.
func (m *Message) SenderIsTeacher() bool {
	return m.SenderID == m.TeacherID
}

// ReceiverID returns the other participant.
func (m *Message) ReceiverID() int64 {
	if m.SenderIsTeacher() {
		return m.MemberID
	}
	return m.TeacherID
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password. ErrConflict is
	// returned when the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string, role Role) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage stores msg and returns the stored copy. When the sender
	// already stored a message under the same idempotency key, that message
	// is returned and created is false.
	SaveMessage(ctx context.Context, msg *Message) (saved *Message, created bool, err error)

	// ListMessages returns the newest limit messages of a conversation in
	// chronological order.
	ListMessages(ctx context.Context, conv Conversation, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
