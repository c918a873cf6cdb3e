package rest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C2SE29-Capstone2/kinderchat/internal/auth"
	"github.com/C2SE29-Capstone2/kinderchat/internal/chat"
	"github.com/C2SE29-Capstone2/kinderchat/internal/config"
	"github.com/C2SE29-Capstone2/kinderchat/internal/proto"
	"github.com/C2SE29-Capstone2/kinderchat/internal/store/sqlite"
	transporthttp "github.com/C2SE29-Capstone2/kinderchat/internal/transport/http"
	"github.com/C2SE29-Capstone2/kinderchat/internal/transport/rest"
)

const classroomID = 12

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.SendRatePerMinute = 0

	srv := httptest.NewServer(transporthttp.NewServer(authService, st, &cfg, &logger).Handler)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL string, opts ...rest.Option) *rest.Client {
	t.Helper()

	c, err := rest.New(baseURL, 5*time.Second, opts...)
	require.NoError(t, err)
	return c
}

type account struct {
	token string
	id    int64
}

func signUp(t *testing.T, c *rest.Client, username, role string) account {
	t.Helper()

	ctx := context.Background()
	token, err := c.Register(ctx, username, "password123", role)
	require.NoError(t, err)
	me, err := c.Me(ctx, token)
	require.NoError(t, err)
	require.Equal(t, username, me.Username)
	require.Equal(t, role, me.Role)
	return account{token: token, id: me.ID}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := rest.New("localhost:8080", time.Second)
	assert.Error(t, err)
}

func TestLoginRoundTrip(t *testing.T) {
	c := newClient(t, newBackend(t).URL)
	ctx := context.Background()

	signUp(t, c, "ms.hoa", "teacher")

	token, err := c.Login(ctx, "ms.hoa", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = c.Login(ctx, "ms.hoa", "wrong-password")
	var statusErr *rest.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.NotEmpty(t, statusErr.Message)
}

func TestSendAndFetchBothSides(t *testing.T) {
	c := newClient(t, newBackend(t).URL)
	ctx := context.Background()

	teacher := signUp(t, c, "ms.hoa", "teacher")
	parent := signUp(t, c, "an.parent", "parent")

	sent, err := c.SendMessage(ctx, teacher.token, classroomID, parent.id, true, "Hello")
	require.NoError(t, err)
	assert.Positive(t, sent.ID)
	assert.Equal(t, "Hello", sent.Content)
	assert.Equal(t, teacher.id, sent.SenderID)
	assert.Equal(t, parent.id, sent.ReceiverID)
	assert.Equal(t, chat.RoleTeacher, sent.SenderRole)
	assert.Equal(t, chat.ChannelID{ClassroomID: classroomID, CounterpartID: parent.id}, sent.Channel)

	reply, err := c.SendMessage(ctx, parent.token, classroomID, teacher.id, false, "Thanks")
	require.NoError(t, err)
	assert.Equal(t, chat.RoleCounterpart, reply.SenderRole)
	assert.Equal(t, chat.ChannelID{ClassroomID: classroomID, CounterpartID: teacher.id}, reply.Channel)

	fromTeacher, err := c.FetchHistory(ctx, teacher.token, classroomID, parent.id, true)
	require.NoError(t, err)
	require.Len(t, fromTeacher, 2)
	assert.Equal(t, []string{"Hello", "Thanks"}, []string{fromTeacher[0].Content, fromTeacher[1].Content})

	fromParent, err := c.FetchHistory(ctx, parent.token, classroomID, teacher.id, false)
	require.NoError(t, err)
	require.Len(t, fromParent, 2)
	for _, m := range fromParent {
		assert.Equal(t, teacher.id, m.Channel.CounterpartID)
	}
	assert.True(t, fromParent[0].IsSenderTeacher())
	assert.False(t, fromParent[1].IsSenderTeacher())
}

func TestFetchHistoryHonoursLimit(t *testing.T) {
	srv := newBackend(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	teacher := signUp(t, c, "ms.hoa", "teacher")
	parent := signUp(t, c, "an.parent", "parent")
	for _, text := range []string{"one", "two", "three"} {
		_, err := c.SendMessage(ctx, teacher.token, classroomID, parent.id, true, text)
		require.NoError(t, err)
	}

	paged := newClient(t, srv.URL, rest.WithHistoryLimit(2))
	msgs, err := paged.FetchHistory(ctx, teacher.token, classroomID, parent.id, true)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
}

func TestSendMessageUsesClientRef(t *testing.T) {
	c := newClient(t, newBackend(t).URL)

	teacher := signUp(t, c, "ms.hoa", "teacher")
	parent := signUp(t, c, "an.parent", "parent")

	ctx := chat.WithClientRef(context.Background(), "ref-1")
	first, err := c.SendMessage(ctx, teacher.token, classroomID, parent.id, true, "Picnic on Friday")
	require.NoError(t, err)
	retry, err := c.SendMessage(ctx, teacher.token, classroomID, parent.id, true, "Picnic on Friday")
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)
	assert.Equal(t, "ref-1", first.ClientRef)

	msgs, err := c.FetchHistory(context.Background(), teacher.token, classroomID, parent.id, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ref-1", msgs[0].ClientRef)

	theirs, err := c.FetchHistory(context.Background(), parent.token, classroomID, teacher.id, false)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Empty(t, theirs[0].ClientRef)
}

func TestUnauthorizedMapsToChatError(t *testing.T) {
	c := newClient(t, newBackend(t).URL)

	_, err := c.FetchHistory(context.Background(), "not-a-token", classroomID, 3, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
	assert.True(t, rest.IsUnauthorized(err))

	_, err = c.Me(context.Background(), "")
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
}

func TestStatusErrorFromPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database is down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL).FetchHistory(context.Background(), "token", classroomID, 3, true)
	var statusErr *rest.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "database is down", statusErr.Message)
	assert.False(t, errors.Is(err, chat.ErrUnauthorized))
}

func TestFetchHistoryRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"a list"`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL).FetchHistory(context.Background(), "token", classroomID, 3, true)
	assert.ErrorContains(t, err, "decode response")
}

func TestFetchHistoryQuery(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.Path + "?" + r.URL.RawQuery + " " + r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	msgs, err := newClient(t, srv.URL+"/", rest.WithHistoryLimit(7)).
		FetchHistory(context.Background(), "tok", classroomID, 3, false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, "/api/classrooms/12/messages?as=counterpart&counterpart_id=3&limit=7 Bearer tok", seen.Load())
}

type staticSession struct {
	token string
	id    int64
}

func (s staticSession) Token() string { return s.token }
func (s staticSession) UserID() int64 { return s.id }

func TestEngineOverREST(t *testing.T) {
	c := newClient(t, newBackend(t).URL, rest.WithHistoryLimit(proto.DefaultHistoryLimit))
	teacher := signUp(t, c, "ms.hoa", "teacher")
	parent := signUp(t, c, "an.parent", "parent")

	teacherEngine := chat.NewEngine(c, staticSession{token: teacher.token, id: teacher.id}, chat.WithInterval(20*time.Millisecond))
	parentEngine := chat.NewEngine(c, staticSession{token: parent.token, id: parent.id}, chat.WithInterval(20*time.Millisecond))
	t.Cleanup(teacherEngine.Stop)
	t.Cleanup(parentEngine.Stop)

	ctx := context.Background()
	require.NoError(t, teacherEngine.Start(ctx, chat.Channel{ClassroomID: classroomID, CounterpartID: parent.id, LocalRole: chat.RoleTeacher}))
	require.NoError(t, parentEngine.Start(ctx, chat.Channel{ClassroomID: classroomID, CounterpartID: teacher.id, LocalRole: chat.RoleCounterpart}))

	sent, err := teacherEngine.Send(ctx, "  Please bring a hat tomorrow ")
	require.NoError(t, err)
	assert.Equal(t, "Please bring a hat tomorrow", sent.Content)
	assert.Equal(t, chat.SideLocal, sent.Side(chat.RoleTeacher))

	require.Eventually(t, func() bool {
		msgs := parentEngine.Messages()
		return len(msgs) == 1 && msgs[0].ID == sent.ID
	}, 2*time.Second, 10*time.Millisecond)

	got := parentEngine.Messages()[0]
	assert.Equal(t, chat.SideRemote, got.Side(chat.RoleCounterpart))
	assert.Equal(t, chat.DeliveryConfirmed, got.State)
}
