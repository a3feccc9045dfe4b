package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbassett/roomrelay/internal/types"
)

func TestClientFrame_parseJoinRoom(t *testing.T) {
	raw := []byte(`{"type":"joinRoom","roomId":"rm-abc"}`)

	var frame ClientFrame
	require.NoError(t, json.Unmarshal(raw, &frame))

	assert.Equal(t, KindJoinRoom, frame.Type)
	assert.Equal(t, "rm-abc", frame.RoomId)
}

func TestClientFrame_textPrefersUserInput(t *testing.T) {
	frame := ClientFrame{UserInput: "hello", Content: "ignored"}
	assert.Equal(t, "hello", frame.Text())

	frame = ClientFrame{Content: "fallback"}
	assert.Equal(t, "fallback", frame.Text())

	assert.Empty(t, ClientFrame{}.Text())
}

func TestClientFrame_parseAIRequest(t *testing.T) {
	raw := []byte(`{
		"type": "requestAIResponse",
		"roomId": "rm-abc",
		"trigger": "force",
		"character": "Aria",
		"latestUserMessageText": "Aria, are you there?"
	}`)

	var frame ClientFrame
	require.NoError(t, json.Unmarshal(raw, &frame))

	assert.Equal(t, KindRequestAIResponse, frame.Type)
	assert.Equal(t, "force", frame.Trigger)
	assert.Equal(t, "Aria", frame.Character)
	assert.Equal(t, "Aria, are you there?", frame.LatestUserMessageText)
}

func TestOutboundFrames_typeField(t *testing.T) {
	cases := []struct {
		frame Frame
		kind  Kind
	}{
		{NewRoomsList(nil), KindRoomsList},
		{NewRoomJoined(types.Room{}, nil, nil), KindRoomJoined},
		{NewRoomCreated(types.Room{}), KindRoomCreated},
		{NewRoomLeft("rm-abc"), KindRoomLeft},
		{NewRoomDeleted("rm-abc"), KindRoomDeleted},
		{NewMemberJoined("rm-abc", 1, "alice"), KindMemberJoined},
		{NewMemberLeft("rm-abc", 1, "alice"), KindMemberLeft},
		{NewRoomSettingsChanged("rm-abc", types.RoomSettings{}), KindRoomSettingsChanged},
		{NewRoomError("boom", "joinRoom"), KindRoomError},
		{NewResponseQueueUpdate("rm-abc", true, "Aria", nil), KindResponseQueueUpdate},
		{NewQueueSuppressed("rm-abc", "busy"), KindQueueSuppressed},
		{NewChatMessage("rm-abc", types.Message{}), KindChatMessage},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.kind, tc.frame.Kind())

			raw, err := json.Marshal(tc.frame)
			require.NoError(t, err)

			var decoded map[string]any
			require.NoError(t, json.Unmarshal(raw, &decoded))
			assert.Equal(t, string(tc.kind), decoded["type"])
		})
	}
}

func TestNewResponseQueueUpdate_remainingNeverNull(t *testing.T) {
	frame := NewResponseQueueUpdate("rm-abc", false, "", nil)

	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"remaining":[]`)
}

func TestNewRoomError_omitsEmptyAction(t *testing.T) {
	raw, err := json.Marshal(NewRoomError("boom", ""))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"action"`)
}
