package store

import "strings"

const roomPrefix = "room:"

func RoomKey(roomID string) string         { return roomPrefix + roomID }
func MessagesKey(roomID string) string     { return roomPrefix + roomID + ":messages" }
func ParticipantsKey(roomID string) string { return roomPrefix + roomID + ":participants" }
func TombstoneKey(roomID string) string    { return roomPrefix + roomID + ":gone" }

// RoomKeys lists every key owned by a room, metadata first.
func RoomKeys(roomID string) []string {
	return []string{RoomKey(roomID), MessagesKey(roomID), ParticipantsKey(roomID)}
}

// RoomIDFromKey extracts the room id from a room metadata key. Keys of the
// message log, participant set or tombstone are rejected.
func RoomIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, roomPrefix)
	if !ok || id == "" || strings.Contains(id, ":") {
		return "", false
	}
	return id, true
}
