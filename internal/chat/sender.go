package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/C2SE29-Capstone2/kinderchat/internal/observability"
)

// SendState is the state of the send gate.
type SendState int32

const (
	// SendIdle allows ticks and a new send.
	SendIdle SendState = iota
	// SendInFlight suppresses ticks and rejects further sends.
	SendInFlight
)

func (s SendState) String() string {
	if s == SendInFlight {
		return "sending"
	}
	return "idle"
}

// Gate is the two-state send machine shared by the sender and the scheduler.
type Gate struct {
	state atomic.Int32
}

// TryAcquire moves Idle to Sending. It fails if a send is already in flight.
func (g *Gate) TryAcquire() bool {
	return g.state.CompareAndSwap(int32(SendIdle), int32(SendInFlight))
}

// Release returns the gate to Idle.
func (g *Gate) Release() {
	g.state.Store(int32(SendIdle))
}

// State returns the current gate state.
func (g *Gate) State() SendState {
	return SendState(g.state.Load())
}

// Sending reports whether a send is in flight.
func (g *Gate) Sending() bool {
	return g.State() == SendInFlight
}

// Send delivers content on the current channel. The message shows up in the
// store as pending before the network call starts. On failure the pending
// message is removed, the draft is restored and a *SendError is returned.
func (e *Engine) Send(ctx context.Context, content string) (Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return Message{}, ErrEmptyContent
	}

	conv := e.conversation()
	if conv == nil {
		return Message{}, ErrNotStarted
	}
	token := e.session.Token()
	if token == "" {
		return Message{}, ErrNoToken
	}
	if !conv.gate.TryAcquire() {
		observability.IncSend(observability.SendRejected)
		return Message{}, ErrSendInFlight
	}
	release := sync.OnceFunc(conv.gate.Release)
	defer release()

	e.SetDraft("")

	ch := conv.channel
	provisional := conv.store.AppendProvisional(Message{
		SenderID:   e.session.UserID(),
		ReceiverID: ch.CounterpartID,
		Content:    text,
		Timestamp:  e.now(),
		SenderRole: ch.LocalRole,
		ClientRef:  e.newRef(),
	})

	confirmed, err := e.deliver(WithClientRef(ctx, provisional.ClientRef), token, ch, text)
	if err == nil {
		err = checkConfirmation(confirmed, ch)
	}
	if err != nil {
		conv.store.Discard(provisional.ID)
		e.restoreDraft(content)
		observability.IncSend(observability.SendFailed)
		e.log.Warn().Err(err).Str("channel", ch.String()).Msg("send failed")
		return Message{}, &SendError{Content: content, Err: err}
	}

	conv.store.Confirm(provisional.ID, *confirmed)
	stored, _ := conv.store.Get(confirmed.ID)
	observability.IncSend(observability.SendOK)
	e.log.Debug().Int64("message_id", confirmed.ID).Str("channel", ch.String()).Msg("message confirmed")

	release()
	conv.scheduler.Trigger()
	return stored, nil
}

// deliver calls the transport and turns a panic into an error so the gate
// is always released and nothing escapes into the view.
func (e *Engine) deliver(ctx context.Context, token string, ch Channel, text string) (msg *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return e.transport.SendMessage(ctx, token, ch.ClassroomID, ch.CounterpartID, ch.IsTeacher(), text)
}

func checkConfirmation(msg *Message, ch Channel) error {
	if msg == nil {
		return ErrNoConfirmation
	}
	if msg.ID <= 0 {
		return fmt.Errorf("%w: invalid id %d", ErrNoConfirmation, msg.ID)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrNoConfirmation)
	}
	if msg.Channel != (ChannelID{}) && msg.Channel != ch.ID() {
		return fmt.Errorf("%w: message belongs to another channel", ErrNoConfirmation)
	}
	return nil
}

// Draft returns the text currently in the input field.
func (e *Engine) Draft() string {
	e.draftMu.Lock()
	defer e.draftMu.Unlock()
	return e.draft
}

// SetDraft replaces the input field text.
func (e *Engine) SetDraft(text string) {
	e.draftMu.Lock()
	defer e.draftMu.Unlock()
	e.draft = text
}

// restoreDraft puts the failed text back unless the user typed something
// new in the meantime.
func (e *Engine) restoreDraft(text string) {
	e.draftMu.Lock()
	defer e.draftMu.Unlock()
	if e.draft == "" {
		e.draft = text
	}
}
