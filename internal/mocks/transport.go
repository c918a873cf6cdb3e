package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/C2SE29-Capstone2/kinderchat/internal/chat"
)

type TransportMock struct {
	mock.Mock
}

func (m *TransportMock) FetchHistory(ctx context.Context, token string, classroomID, counterpartID int64, isTeacherRequestor bool) ([]chat.Message, error) {
	args := m.Called(ctx, token, classroomID, counterpartID, isTeacherRequestor)
	var list []chat.Message
	if val := args.Get(0); val != nil {
		list = val.([]chat.Message)
	}
	return list, args.Error(1)
}

func (m *TransportMock) SendMessage(ctx context.Context, token string, classroomID, counterpartID int64, isTeacherSender bool, content string) (*chat.Message, error) {
	args := m.Called(ctx, token, classroomID, counterpartID, isTeacherSender, content)
	var msg *chat.Message
	if val := args.Get(0); val != nil {
		msg = val.(*chat.Message)
	}
	return msg, args.Error(1)
}

type SessionMock struct {
	mock.Mock
}

func (m *SessionMock) Token() string {
	args := m.Called()
	return args.String(0)
}

func (m *SessionMock) UserID() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}
