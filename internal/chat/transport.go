package chat

import "context"

// Transport is the chat backend as seen by the engine.
type Transport interface {
	// FetchHistory returns the newest page of a conversation in any order.
	FetchHistory(ctx context.Context, token string, classroomID, counterpartID int64, isTeacherRequestor bool) ([]Message, error)
	// SendMessage stores one message and returns the server's copy.
	SendMessage(ctx context.Context, token string, classroomID, counterpartID int64, isTeacherSender bool, content string) (*Message, error)
}

// Session supplies the current credentials. Token returns "" when the user
// is logged out or the token has expired.
type Session interface {
	Token() string
	UserID() int64
}

type clientRefKey struct{}

// WithClientRef attaches the idempotency key of a send to ctx.
func WithClientRef(ctx context.Context, ref string) context.Context {
	if ref == "" {
		return ctx
	}
	return context.WithValue(ctx, clientRefKey{}, ref)
}

// ClientRefFrom returns the idempotency key attached by WithClientRef.
func ClientRefFrom(ctx context.Context) string {
	ref, _ := ctx.Value(clientRefKey{}).(string)
	return ref
}
