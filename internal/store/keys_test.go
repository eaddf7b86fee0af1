package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomIDFromKey(t *testing.T) {
	tests := []struct {
		key    string
		wantID string
		wantOK bool
	}{
		{key: RoomKey("V1StGXR8_Z5jdHi6B-myT"), wantID: "V1StGXR8_Z5jdHi6B-myT", wantOK: true},
		{key: MessagesKey("abc"), wantOK: false},
		{key: ParticipantsKey("abc"), wantOK: false},
		{key: TombstoneKey("abc"), wantOK: false},
		{key: "room:", wantOK: false},
		{key: "session:abc", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			id, ok := RoomIDFromKey(tt.key)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantID, id)
		})
	}
}

func TestRoomKeys_MetadataFirst(t *testing.T) {
	keys := RoomKeys("abc")
	require.Equal(t, []string{"room:abc", "room:abc:messages", "room:abc:participants"}, keys)
}
