package chat

import "time"

// DeliveryState tracks a message through the send round-trip. It is local
// bookkeeping and never travels to the server.
type DeliveryState int

const (
	// DeliveryConfirmed marks a message the server has accepted.
	DeliveryConfirmed DeliveryState = iota
	// DeliveryPending marks a provisional message awaiting the send response.
	DeliveryPending
	// DeliveryFailed names a rejected send. The engine removes a rejected
	// provisional message and restores the draft instead of keeping it, so
	// no Store entry carries this state.
	DeliveryFailed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryFailed:
		return "failed"
	default:
		return "confirmed"
	}
}

// Side is where a message bubble is rendered relative to the viewer.
type Side int

const (
	SideRemote Side = iota
	SideLocal
)

// Message is one chat entry in a channel.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	Timestamp  time.Time
	Channel    ChannelID
	SenderRole Role
	State      DeliveryState

	// ClientRef is set on locally created messages and doubles as the
	// idempotency key of the send request. The server echoes it back on the
	// sender's own messages.
	ClientRef string
}

// IsSenderTeacher is the wire flag derived from SenderRole.
func (m Message) IsSenderTeacher() bool {
	return m.SenderRole == RoleTeacher
}

// Pending reports whether the message is still awaiting confirmation.
func (m Message) Pending() bool {
	return m.State == DeliveryPending
}

// Provisional reports whether the message carries a local temporary id.
func (m Message) Provisional() bool {
	return m.ID < 0
}

// Side returns the bubble side for a viewer holding the given role.
func (m Message) Side(viewer Role) Side {
	if m.SenderRole == viewer {
		return SideLocal
	}
	return SideRemote
}

// less implements the store ordering: timestamp ascending, ties by id.
func less(a, b Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func sameMessage(a, b Message) bool {
	return a.ID == b.ID &&
		a.SenderID == b.SenderID &&
		a.ReceiverID == b.ReceiverID &&
		a.Content == b.Content &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.Channel == b.Channel &&
		a.SenderRole == b.SenderRole &&
		a.State == b.State
}
