package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/C2SE29-Capstone2/kinderchat/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, name string, role store.Role) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), name, "hash", role)
	if err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := mustUser(t, s, "ms.lan", store.RoleTeacher)
	if created.ID == 0 || created.Role != store.RoleTeacher {
		t.Fatalf("unexpected user: %+v", created)
	}

	byName, err := s.GetUserByUsername(ctx, "ms.lan")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName.ID != created.ID {
		t.Fatalf("expected id %d, got %d", created.ID, byName.ID)
	}

	if _, err := s.GetUserByID(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.CreateUser(ctx, "ms.lan", "hash", store.RoleParent); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func TestListMessagesReturnsNewestPageInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	teacher := mustUser(t, s, "teacher", store.RoleTeacher)
	parent := mustUser(t, s, "parent", store.RoleParent)
	other := mustUser(t, s, "other", store.RoleParent)
	conv := store.Conversation{ClassroomID: 5, TeacherID: teacher.ID, MemberID: parent.ID}

	for i := 1; i <= 5; i++ {
		sender := teacher.ID
		if i%2 == 0 {
			sender = parent.ID
		}
		_, _, err := s.SaveMessage(ctx, &store.Message{
			ClassroomID: conv.ClassroomID,
			TeacherID:   conv.TeacherID,
			MemberID:    conv.MemberID,
			SenderID:    sender,
			Body:        fmt.Sprintf("msg %d", i),
		})
		if err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}
	// Same classroom, different member: must not leak into conv.
	if _, _, err := s.SaveMessage(ctx, &store.Message{ClassroomID: 5, TeacherID: teacher.ID, MemberID: other.ID, SenderID: other.ID, Body: "elsewhere"}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, conv, 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"msg 3", "msg 4", "msg 5"} {
		if msgs[i].Body != want {
			t.Fatalf("message %d: expected %q, got %q", i, want, msgs[i].Body)
		}
	}
	if !msgs[0].SenderIsTeacher() || msgs[0].ReceiverID() != parent.ID {
		t.Fatalf("unexpected sender resolution: %+v", msgs[0])
	}
	if msgs[1].SenderIsTeacher() || msgs[1].ReceiverID() != teacher.ID {
		t.Fatalf("unexpected sender resolution: %+v", msgs[1])
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
}

func TestSaveMessageDeduplicatesIdempotencyKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	teacher := mustUser(t, s, "teacher", store.RoleTeacher)
	parent := mustUser(t, s, "parent", store.RoleParent)
	msg := store.Message{
		ClassroomID:    5,
		TeacherID:      teacher.ID,
		MemberID:       parent.ID,
		SenderID:       parent.ID,
		Body:           "Hello",
		IdempotencyKey: "ref-1",
	}

	first, created, err := s.SaveMessage(ctx, &msg)
	if err != nil || !created {
		t.Fatalf("first save: created=%v err=%v", created, err)
	}

	retry := msg
	second, created, err := s.SaveMessage(ctx, &retry)
	if err != nil {
		t.Fatalf("retry save failed: %v", err)
	}
	if created {
		t.Fatalf("retry must not create a second message")
	}
	if second.ID != first.ID {
		t.Fatalf("expected id %d on retry, got %d", first.ID, second.ID)
	}

	msgs, err := s.ListMessages(ctx, msg.Conversation(), 10)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(msgs))
	}
}
