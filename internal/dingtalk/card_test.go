// ABOUTME: Tests for AI streaming card creation and content updates
// ABOUTME: Asserts request shapes against a local card API server

package dingtalk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

func groupMessage() Message {
	return Message{
		MsgID:            "msg-1",
		ConversationID:   "cid-42",
		ConversationType: ConversationTypeGroup,
		SenderStaffID:    "staff-7",
	}
}

func privateMessage() Message {
	return Message{
		MsgID:            "msg-2",
		ConversationID:   "cid-43",
		ConversationType: ConversationTypePrivate,
		SenderStaffID:    "staff-7",
	}
}

func TestCardClient_StartCard_Group(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1.0/card/instances/createAndDeliver", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get("x-acs-dingtalk-access-token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := NewCardClient(srv.URL, "app-key", staticTokens{token: "tok-1"}, discardLogger())

	card, err := client.StartCard(context.Background(), groupMessage())
	require.NoError(t, err)
	require.NotNil(t, card)

	assert.Equal(t, aiCardTemplateID, body["cardTemplateId"])
	assert.Equal(t, "dtv1.card//IM_GROUP.cid-42", body["openSpaceId"])
	assert.NotEmpty(t, card.OutTrackID())
	assert.Equal(t, card.OutTrackID(), body["outTrackId"])

	deliver, ok := body["imGroupOpenDeliverModel"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "app-key", deliver["robotCode"])

	cardData, ok := body["cardData"].(map[string]any)
	require.True(t, ok)
	params, ok := cardData["cardParamMap"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "", params["content"])
}

func TestCardClient_StartCard_Private(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := NewCardClient(srv.URL, "app-key", staticTokens{token: "tok-1"}, discardLogger())

	_, err := client.StartCard(context.Background(), privateMessage())
	require.NoError(t, err)

	assert.Equal(t, "dtv1.card//IM_ROBOT.staff-7", body["openSpaceId"])
	assert.Nil(t, body["imGroupOpenDeliverModel"])

	deliver, ok := body["imRobotOpenDeliverModel"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IM_ROBOT", deliver["spaceType"])
}

func TestCard_UpdateAndFinish(t *testing.T) {
	var creates, streams []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/v1.0/card/instances/createAndDeliver":
			creates = append(creates, body)
		case "/v1.0/card/streaming":
			assert.Equal(t, http.MethodPut, r.Method)
			streams = append(streams, body)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := NewCardClient(srv.URL, "app-key", staticTokens{token: "tok-1"}, discardLogger())

	card, err := client.StartCard(context.Background(), groupMessage())
	require.NoError(t, err)

	require.NoError(t, card.Update(context.Background(), "Hi"))
	require.NoError(t, card.Update(context.Background(), "Hi there"))
	require.NoError(t, card.Finish(context.Background(), "Hi there"))

	require.Len(t, creates, 1)
	require.Len(t, streams, 3)

	for i, stream := range streams {
		assert.Equal(t, card.OutTrackID(), stream["outTrackId"], "update %d", i)
		assert.Equal(t, "content", stream["key"], "update %d", i)
		assert.Equal(t, true, stream["isFull"], "update %d", i)
		assert.NotEmpty(t, stream["guid"], "update %d", i)
	}
	assert.NotEqual(t, streams[0]["guid"], streams[1]["guid"])

	assert.Equal(t, "Hi", streams[0]["content"])
	assert.Equal(t, false, streams[0]["isFinalize"])
	assert.Equal(t, "Hi there", streams[1]["content"])
	assert.Equal(t, false, streams[1]["isFinalize"])
	assert.Equal(t, "Hi there", streams[2]["content"])
	assert.Equal(t, true, streams[2]["isFinalize"])
}

func TestCardClient_StartCard_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"Forbidden","message":"no card permission"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewCardClient(srv.URL, "app-key", staticTokens{token: "tok-1"}, discardLogger())

	_, err := client.StartCard(context.Background(), groupMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "no card permission")
}

func TestCardClient_StartCard_TokenError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	client := NewCardClient(srv.URL, "app-key", staticTokens{err: context.DeadlineExceeded}, discardLogger())

	_, err := client.StartCard(context.Background(), groupMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining access token")
	assert.Equal(t, 0, calls)
}
