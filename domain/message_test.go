package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lingo-dm/errors"
)

func Test_DeriveConversationID_Is_Commutative(t *testing.T) {
	req := require.New(t)
	pairs := [][2]string{
		{"u1", "u2"},
		{"alice", "bob"},
		{"zed", "amy"},
		{"507f191e810c19729de860ea", "507f1f77bcf86cd799439011"},
	}
	for _, pair := range pairs {
		ab, err := DeriveConversationID(pair[0], pair[1])
		req.NoError(err)
		ba, err := DeriveConversationID(pair[1], pair[0])
		req.NoError(err)
		req.Equal(ab, ba)
	}
}

func Test_DeriveConversationID_Sorts_Participants(t *testing.T) {
	req := require.New(t)
	id, err := DeriveConversationID("u2", "u1")
	req.NoError(err)
	req.Equal("u1-u2", id)
}

func Test_DeriveConversationID_Rejects_Empty_ID(t *testing.T) {
	req := require.New(t)
	_, err := DeriveConversationID("", "u2")
	req.ErrorIs(err, errors.ErrEmptyUserID)
	_, err = DeriveConversationID("u1", "")
	req.ErrorIs(err, errors.ErrEmptyUserID)
}

func Test_SortAscending_Breaks_Timestamp_Ties_By_MessageID(t *testing.T) {
	req := require.New(t)
	messages := []Message{
		{CreatedAt: 2000, MessageID: "b"},
		{CreatedAt: 1000, MessageID: "z"},
		{CreatedAt: 2000, MessageID: "a"},
	}
	SortAscending(messages)
	req.Equal("z", messages[0].MessageID)
	req.Equal("a", messages[1].MessageID)
	req.Equal("b", messages[2].MessageID)
}
