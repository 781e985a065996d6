package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	raw := []byte(`{
		"update_id": 42,
		"message_id": 7,
		"chat": {"id": 123},
		"from": {"id": 456, "username": "testuser"},
		"text": "/echo hello"
	}`)

	u, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.UpdateID)
	assert.Equal(t, int64(123), u.Chat.ID)
	assert.Equal(t, int64(456), u.From.ID)
	assert.Equal(t, "testuser", u.From.Username)
	assert.Equal(t, "/echo hello", u.Text)
	assert.False(t, u.HasAttachment())
}

func TestDecodeRejectsMissingChat(t *testing.T) {
	raw := []byte(`{"update_id": 1, "text": "hi", "from": {"id": 456}}`)

	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrMissingChat)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"chat":`))
	assert.Error(t, err)
}

func TestDecodeAttachments(t *testing.T) {
	raw := []byte(`{
		"update_id": 2,
		"chat": {"id": 1},
		"from": {"id": 2},
		"sticker": {"file_id": "abc", "emoji": "👍"}
	}`)

	u, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, u.HasAttachment())
	require.NotNil(t, u.Sticker)
	assert.Equal(t, "abc", u.Sticker.FileID)
}
