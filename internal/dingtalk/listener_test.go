// ABOUTME: Tests for callback payload normalization
// ABOUTME: Uses raw JSON so the SDK's own decoding path is exercised

package dingtalk

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFromCallback(t *testing.T) {
	raw := `{
		"msgId": "msg-100",
		"conversationId": "cid-9",
		"conversationType": "2",
		"senderStaffId": "staff-3",
		"senderNick": "Ada",
		"sessionWebhook": "https://oapi.example.com/robot/sendBySession?session=abc",
		"text": {"content": " what is the weather "},
		"msgtype": "text"
	}`

	var data chatbot.BotCallbackDataModel
	require.NoError(t, json.Unmarshal([]byte(raw), &data))

	msg := messageFromCallback(&data)
	assert.Equal(t, "msg-100", msg.MsgID)
	assert.Equal(t, " what is the weather ", msg.Text)
	assert.Equal(t, "cid-9", msg.ConversationID)
	assert.Equal(t, "staff-3", msg.SenderStaffID)
	assert.Equal(t, "Ada", msg.SenderNick)
	assert.Equal(t, "https://oapi.example.com/robot/sendBySession?session=abc", msg.SessionWebhook)
	assert.True(t, msg.IsGroup())
}

func TestMessage_IsGroup(t *testing.T) {
	assert.True(t, Message{ConversationType: ConversationTypeGroup}.IsGroup())
	assert.False(t, Message{ConversationType: ConversationTypePrivate}.IsGroup())
	assert.False(t, Message{}.IsGroup())
}

func TestCallbackAdapter_AcksOnSuccess(t *testing.T) {
	var got Message
	adapter := callbackAdapter(func(ctx context.Context, msg Message) error {
		got = msg
		return nil
	}, discardLogger())

	data := &chatbot.BotCallbackDataModel{MsgId: "msg-7"}
	data.Text.Content = "hi"

	resp, err := adapter(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []byte(""), resp)
	assert.Equal(t, "msg-7", got.MsgID)
	assert.Equal(t, "hi", got.Text)
}

func TestCallbackAdapter_PropagatesHandlerError(t *testing.T) {
	boom := errors.New("unusable payload")
	adapter := callbackAdapter(func(ctx context.Context, msg Message) error {
		return boom
	}, discardLogger())

	_, err := adapter(context.Background(), &chatbot.BotCallbackDataModel{MsgId: "msg-8"})
	require.ErrorIs(t, err, boom)
}
