package proto

import "time"

const (
	// HeaderIdempotencyKey carries the client reference of a send so a retried
	// request does not store the message twice.
	HeaderIdempotencyKey = "Idempotency-Key"

	// AsTeacher and AsCounterpart are the values of the "as" query parameter
	// on history requests.
	AsTeacher     = "teacher"
	AsCounterpart = "counterpart"

	// DefaultHistoryLimit is the page size used when a request omits "limit".
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps the page size of a history request.
	MaxHistoryLimit = 200
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=teacher parent student"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendMessageRequest is the body of a message send.
type SendMessageRequest struct {
	CounterpartID   int64  `json:"counterpart_id" binding:"required,gt=0"`
	IsTeacherSender bool   `json:"is_teacher_sender"`
	Content         string `json:"content" binding:"required"`
}

// MessageDTO is a chat message as seen by the requesting user. CounterpartID
// is the other participant from the requester's point of view. ClientRef
// echoes the Idempotency-Key of the send and is only shown to the sender.
type MessageDTO struct {
	ID              int64     `json:"id"`
	ClassroomID     int64     `json:"classroom_id"`
	CounterpartID   int64     `json:"counterpart_id"`
	SenderID        int64     `json:"sender_id"`
	ReceiverID      int64     `json:"receiver_id"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	IsSenderTeacher bool      `json:"is_sender_teacher"`
	ClientRef       string    `json:"client_ref,omitempty"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
