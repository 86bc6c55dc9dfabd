package gateway

import (
	"fmt"
	"strings"
)

// Intents selects which event categories the server delivers.
type Intents uint32

const (
	IntentRooms Intents = 1 << iota
	IntentRoomConnections
	IntentMessages
	IntentBans
	IntentUsers
	IntentTyping
	IntentPresence

	IntentsAll = IntentRooms | IntentRoomConnections | IntentMessages | IntentBans |
		IntentUsers | IntentTyping | IntentPresence
)

var intentNames = map[string]Intents{
	"rooms":            IntentRooms,
	"room_connections": IntentRoomConnections,
	"messages":         IntentMessages,
	"bans":             IntentBans,
	"users":            IntentUsers,
	"typing":           IntentTyping,
	"presence":         IntentPresence,
	"all":              IntentsAll,
}

// ParseIntents combines intent names such as "messages" or "room_connections".
func ParseIntents(names []string) (Intents, error) {
	var out Intents
	for _, name := range names {
		intent, ok := intentNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown intent %q", name)
		}
		out |= intent
	}
	return out, nil
}
