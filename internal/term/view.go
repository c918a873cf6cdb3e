// Package term renders a chat channel in a terminal and feeds typed lines to
// the engine.
package term

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/C2SE29-Capstone2/kinderchat/internal/chat"
)

const bubbleWidth = 64

// Engine is the part of chat.Engine the view drives.
type Engine interface {
	Start(ctx context.Context, ch chat.Channel) error
	Stop()
	Send(ctx context.Context, content string) (chat.Message, error)
	Messages() []chat.Message
	Changes() <-chan struct{}
	Draft() string
	SetDraft(text string)
}

// View prints a conversation and reads outgoing lines. Its lifetime is one
// Run call: Run mounts the channel and unmounts it on return.
type View struct {
	out  io.Writer
	now  func() time.Time
	mu   sync.Mutex
	seen map[int64]struct{}
	role chat.Role
}

// NewView creates a view writing to out.
func NewView(out io.Writer) *View {
	return &View{
		out:  out,
		now:  time.Now,
		seen: make(map[int64]struct{}),
	}
}

// Alert prints a user-visible problem. It is meant to be passed to
// chat.WithAlert and may be called from any goroutine.
func (v *View) Alert(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var syncErr *chat.SyncError
	switch {
	case errors.Is(err, chat.ErrNoToken), errors.Is(err, chat.ErrUnauthorized):
		fmt.Fprintln(v.out, "! session expired, please log in again")
	case errors.As(err, &syncErr):
		fmt.Fprintf(v.out, "! could not load messages: %v\n", syncErr.Err)
	default:
		fmt.Fprintf(v.out, "! %v\n", err)
	}
}

// Run mounts ch, renders changes and sends each line read from in until in
// is exhausted, the line "/quit" is read or ctx is cancelled.
func (v *View) Run(ctx context.Context, engine Engine, ch chat.Channel, in io.Reader) error {
	if err := engine.Start(ctx, ch); err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer engine.Stop()

	v.mu.Lock()
	v.role = ch.LocalRole
	v.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v.renderLoop(ctx, engine)
	}()

	err := v.inputLoop(ctx, engine, in)
	cancel()
	wg.Wait()
	return err
}

func (v *View) renderLoop(ctx context.Context, engine Engine) {
	changes := engine.Changes()
	v.render(engine.Messages())
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			v.render(engine.Messages())
		}
	}
}

func (v *View) inputLoop(ctx context.Context, engine Engine, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "/quit" {
				return nil
			}
			v.submit(ctx, engine, line)
		}
	}
}

// submit sends line, or the kept draft when line is blank.
func (v *View) submit(ctx context.Context, engine Engine, line string) {
	if strings.TrimSpace(line) != "" {
		engine.SetDraft(line)
	}
	draft := engine.Draft()
	if strings.TrimSpace(draft) == "" {
		return
	}

	msg, err := engine.Send(ctx, draft)
	if err != nil {
		v.sendFailed(engine, err)
		return
	}
	v.render([]chat.Message{msg})
}

func (v *View) sendFailed(engine Engine, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case errors.Is(err, chat.ErrSendInFlight):
		fmt.Fprintln(v.out, "! still sending the previous message")
	case errors.Is(err, chat.ErrNoToken), errors.Is(err, chat.ErrNotStarted):
		fmt.Fprintln(v.out, "! not connected, message not sent")
	default:
		cause := err
		var sendErr *chat.SendError
		if errors.As(err, &sendErr) {
			cause = sendErr.Err
		}
		fmt.Fprintf(v.out, "! message not sent [%s]: %v\n", chat.ErrorCode(err), cause)
	}
	if draft := engine.Draft(); draft != "" {
		fmt.Fprintf(v.out, "  draft kept: %q (press Enter to retry)\n", draft)
	}
}

// render prints confirmed messages that have not been printed yet.
func (v *View) render(msgs []chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, m := range msgs {
		if m.Provisional() || m.Pending() {
			continue
		}
		if _, ok := v.seen[m.ID]; ok {
			continue
		}
		v.seen[m.ID] = struct{}{}
		fmt.Fprintln(v.out, v.bubble(m))
	}
}

func (v *View) bubble(m chat.Message) string {
	when := humanize.RelTime(m.Timestamp, v.now(), "ago", "from now")
	if m.Side(v.role) == chat.SideLocal {
		return fmt.Sprintf("%*s", bubbleWidth, m.Content+"  · "+when)
	}
	who := "teacher"
	if !m.IsSenderTeacher() {
		who = fmt.Sprintf("user %d", m.SenderID)
	}
	return fmt.Sprintf("%s: %s  · %s", who, m.Content, when)
}
