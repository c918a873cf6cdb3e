package http

import (
	"github.com/C2SE29-Capstone2/kinderchat/internal/proto"
	"github.com/C2SE29-Capstone2/kinderchat/internal/store"
)

// messageToDTO renders msg from the point of view of viewerID, who must be
// one of the two participants.
func messageToDTO(msg *store.Message, viewerID int64) proto.MessageDTO {
	counterpart := msg.TeacherID
	if viewerID == msg.TeacherID {
		counterpart = msg.MemberID
	}
	dto := proto.MessageDTO{
		ID:              msg.ID,
		ClassroomID:     msg.ClassroomID,
		CounterpartID:   counterpart,
		SenderID:        msg.SenderID,
		ReceiverID:      msg.ReceiverID(),
		Content:         msg.Body,
		Timestamp:       msg.CreatedAt.UTC(),
		IsSenderTeacher: msg.SenderIsTeacher(),
	}
	if viewerID == msg.SenderID {
		dto.ClientRef = msg.IdempotencyKey
	}
	return dto
}

func messagesToDTO(msgs []*store.Message, viewerID int64) []proto.MessageDTO {
	out := make([]proto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToDTO(m, viewerID))
	}
	return out
}
