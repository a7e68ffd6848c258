package server

import (
	"encoding/json"
	"testing"

	"github.com/npezzotti/go-santa/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	letter := 7
	snap := types.Snapshot{
		Room: types.Room{Id: 1, Name: "office", OwnerId: 10, OwnerName: "Alice"},
		Participants: []types.Participant{
			{UserId: 10, Name: "Alice", IsOwner: true, IsReady: true, SelectedLetterId: &letter},
			{UserId: 11, Name: "Bob"},
		},
		ReadyCount:        1,
		TotalParticipants: 2,
	}

	tcases := []struct {
		name     string
		event    Event
		kind     string
		expected map[string]any
	}{
		{
			name:     "connected",
			event:    NewConnected(1, "abc"),
			kind:     "connected",
			expected: map[string]any{"roomId": float64(1), "connectionId": "abc"},
		},
		{
			name:     "participant joined",
			event:    NewParticipantJoined(1, 11, snap),
			kind:     "participant_joined",
			expected: map[string]any{"roomId": float64(1), "userId": float64(11), "readyCount": float64(1), "totalParticipants": float64(2)},
		},
		{
			name:     "participant left",
			event:    NewParticipantLeft(1, 11, snap),
			kind:     "participant_left",
			expected: map[string]any{"roomId": float64(1), "userId": float64(11)},
		},
		{
			name:     "letter selected",
			event:    NewLetterSelected(1, 10, snap),
			kind:     "letter_selected",
			expected: map[string]any{"userId": float64(10)},
		},
		{
			name:     "ready status changed",
			event:    NewReadyStatusChanged(1, 10, true, snap),
			kind:     "ready_status_changed",
			expected: map[string]any{"userId": float64(10), "isReady": true},
		},
		{
			name:     "draw completed",
			event:    NewDrawCompleted(1, []types.DrawResult{{GiverId: 10, ReceiverId: 11}}),
			kind:     "draw_completed",
			expected: map[string]any{"roomId": float64(1)},
		},
		{
			name:     "room deleted",
			event:    NewRoomDeleted(1),
			kind:     "room_deleted",
			expected: map[string]any{"roomId": float64(1)},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, EventType(tc.kind), tc.event.Type())

			data, err := Encode(tc.event)
			require.NoError(t, err, "expected no error encoding event")

			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tc.kind, got["type"])
			assert.NotEmpty(t, got["timestamp"], "expected timestamp to be set")
			for k, v := range tc.expected {
				assert.Equal(t, v, got[k], "unexpected value for %q", k)
			}
		})
	}
}

func TestEncode_SnapshotIsInlined(t *testing.T) {
	snap := types.Snapshot{
		Room:              types.Room{Id: 3, Name: "family"},
		Participants:      []types.Participant{{UserId: 1, Name: "Alice", IsOwner: true}},
		TotalParticipants: 1,
	}

	data, err := Encode(NewParticipantJoined(3, 1, snap))
	require.NoError(t, err)

	var got struct {
		Type         string              `json:"type"`
		Room         types.Room          `json:"room"`
		Participants []types.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "participant_joined", got.Type)
	assert.Equal(t, "family", got.Room.Name)
	require.Len(t, got.Participants, 1)
	assert.True(t, got.Participants[0].IsOwner)
}
