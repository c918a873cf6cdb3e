package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// Role identifies which side of a classroom conversation a participant is on.
type Role string

const (
	// RoleTeacher is the classroom teacher.
	RoleTeacher Role = "teacher"
	// RoleCounterpart is the parent or student talking to the teacher.
	RoleCounterpart Role = "counterpart"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleCounterpart
}

// ParseRole maps user-facing role names to a Role. Parents and students are
// both counterparts of the teacher.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "teacher":
		return RoleTeacher, nil
	case "counterpart", "parent", "student":
		return RoleCounterpart, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidChannel, s)
	}
}

// ChannelID is the composite key of a two-party classroom conversation.
type ChannelID struct {
	ClassroomID   int64
	CounterpartID int64
}

// Channel identifies a conversation from the local user's point of view.
// It is immutable for the lifetime of an engine session.
type Channel struct {
	ClassroomID   int64
	CounterpartID int64
	LocalRole     Role
}

// ID returns the composite channel key.
func (c Channel) ID() ChannelID {
	return ChannelID{ClassroomID: c.ClassroomID, CounterpartID: c.CounterpartID}
}

// IsTeacher reports whether the local user is the teacher in this channel.
func (c Channel) IsTeacher() bool {
	return c.LocalRole == RoleTeacher
}

// Validate checks that both ids are positive and the role is known.
func (c Channel) Validate() error {
	if c.ClassroomID <= 0 {
		return fmt.Errorf("%w: classroom id must be positive, got %d", ErrInvalidChannel, c.ClassroomID)
	}
	if c.CounterpartID <= 0 {
		return fmt.Errorf("%w: counterpart id must be positive, got %d", ErrInvalidChannel, c.CounterpartID)
	}
	if !c.LocalRole.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidChannel, c.LocalRole)
	}
	return nil
}

func (c Channel) String() string {
	return fmt.Sprintf("classroom=%d counterpart=%d role=%s", c.ClassroomID, c.CounterpartID, c.LocalRole)
}

// ParseChannel builds a Channel from raw navigation parameters. Malformed or
// missing ids never default to some other channel.
func ParseChannel(classroomRaw, counterpartRaw string, role Role) (Channel, error) {
	classroomID, err := parsePositiveID("classroom id", classroomRaw)
	if err != nil {
		return Channel{}, err
	}
	counterpartID, err := parsePositiveID("counterpart id", counterpartRaw)
	if err != nil {
		return Channel{}, err
	}

	ch := Channel{
		ClassroomID:   classroomID,
		CounterpartID: counterpartID,
		LocalRole:     role,
	}
	if err := ch.Validate(); err != nil {
		return Channel{}, err
	}
	return ch, nil
}

func parsePositiveID(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidChannel, field)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrInvalidChannel, field, raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidChannel, field, id)
	}
	return id, nil
}
