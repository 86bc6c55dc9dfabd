package gateway

import (
	"encoding/json"

	"github.com/luciancaetano/knet/internal/protocol"
)

// Event is implemented by every value the gateway emits. The set is closed:
// only types in this package implement it.
type Event interface {
	// EventName returns the name listeners subscribe with. It is safe to call
	// on a nil pointer.
	EventName() string
	// Client returns the gateway client that emitted the event.
	Client() *Client
	isEvent()
}

// eventBase holds the back-reference to the emitting client. The client never
// keeps the events it emits.
type eventBase struct {
	client *Client
}

func (b eventBase) Client() *Client { return b.client }
func (eventBase) isEvent()          {}

// Lifecycle events that do not come from a Dispatch payload.
const (
	EventResumed      = "Resumed"
	EventDisconnected = "Disconnected"
)

// Resumed is emitted when Connect is called with an existing session id.
type Resumed struct {
	eventBase
	SessionID string
}

func (*Resumed) EventName() string { return EventResumed }

// Disconnected is emitted once both session pipelines have stopped.
type Disconnected struct {
	eventBase
	// CloseCode is the code the session closed with.
	CloseCode int
	// Err is set when the session ended on an unexpected failure.
	Err error
}

func (*Disconnected) EventName() string { return EventDisconnected }

// Ready is the first dispatch of a session. It carries the session id used
// to resume, the current user and the rooms they can see.
type Ready struct {
	eventBase
	protocol.Ready
}

func (*Ready) EventName() string { return string(protocol.EventReady) }

// RoomCreated is emitted when a room becomes visible to the user.
type RoomCreated struct {
	eventBase
	Room protocol.Room
}

func (*RoomCreated) EventName() string { return string(protocol.EventRoomCreated) }

// RoomUpdated carries the new state of a room.
type RoomUpdated struct {
	eventBase
	Room protocol.Room
}

func (*RoomUpdated) EventName() string { return string(protocol.EventRoomUpdated) }

// RoomRemoved is emitted when a room is deleted or no longer visible.
type RoomRemoved struct {
	eventBase
	RoomID string
}

func (*RoomRemoved) EventName() string { return string(protocol.EventRoomRemoved) }

// RoomConnectionCreated is emitted when a user joins a room.
type RoomConnectionCreated struct {
	eventBase
	Connection protocol.RoomConnection
}

func (*RoomConnectionCreated) EventName() string { return string(protocol.EventRoomConnectionCreated) }

// RoomConnectionRemoved is emitted when a user leaves a room.
type RoomConnectionRemoved struct {
	eventBase
	Connection protocol.RoomConnection
}

func (*RoomConnectionRemoved) EventName() string { return string(protocol.EventRoomConnectionRemoved) }

// UserUpdated carries the new profile of a user.
type UserUpdated struct {
	eventBase
	User protocol.User
}

func (*UserUpdated) EventName() string { return string(protocol.EventUserUpdated) }

// UserCurrentRoomUpdated is emitted when a user moves to another room.
type UserCurrentRoomUpdated struct {
	eventBase
	UserID string
	// RoomID is nil when the user left every room.
	RoomID *string
}

func (*UserCurrentRoomUpdated) EventName() string {
	return string(protocol.EventUserCurrentRoomUpdated)
}

// MessageCreated is emitted for every new message in a room.
type MessageCreated struct {
	eventBase
	Message protocol.Message
}

func (*MessageCreated) EventName() string { return string(protocol.EventMessageCreated) }

// MessageRemoved is emitted when a message is deleted.
type MessageRemoved struct {
	eventBase
	MessageID string
	RoomID    string
}

func (*MessageRemoved) EventName() string { return string(protocol.EventMessageRemoved) }

// UserStartedTyping is emitted when a user starts typing in a room.
type UserStartedTyping struct {
	eventBase
	Typing protocol.Typing
}

func (*UserStartedTyping) EventName() string { return string(protocol.EventUserStartedTyping) }

// UserStoppedTyping is emitted when a user stops typing in a room.
type UserStoppedTyping struct {
	eventBase
	Typing protocol.Typing
}

func (*UserStoppedTyping) EventName() string { return string(protocol.EventUserStoppedTyping) }

// BanCreated is emitted when a user is banned from a room.
type BanCreated struct {
	eventBase
	Ban protocol.Ban
}

func (*BanCreated) EventName() string { return string(protocol.EventBanCreated) }

// BanRemoved is emitted when a ban is lifted.
type BanRemoved struct {
	eventBase
	Ban protocol.Ban
}

func (*BanRemoved) EventName() string { return string(protocol.EventBanRemoved) }

// UserPresenceUpdated carries a user's new presence.
type UserPresenceUpdated struct {
	eventBase
	UserID   string
	Presence protocol.Presence
}

func (*UserPresenceUpdated) EventName() string { return string(protocol.EventUserPresenceUpdated) }

// decoder turns the raw data of a Dispatch payload into an event.
type decoder func(base eventBase, raw json.RawMessage) (Event, error)

// decodeWith validates raw against schema T before building the event.
func decodeWith[T any, PT interface {
	*T
	protocol.Validator
}](build func(base eventBase, v *T) Event) decoder {
	return func(base eventBase, raw json.RawMessage) (Event, error) {
		v, err := protocol.DecodeData[T, PT](raw)
		if err != nil {
			return nil, err
		}
		return build(base, v), nil
	}
}

// decoders maps every inbound event name to its decoder.
var decoders = map[protocol.EventName]decoder{
	protocol.EventReady: decodeWith(func(b eventBase, v *protocol.Ready) Event {
		return &Ready{eventBase: b, Ready: *v}
	}),
	protocol.EventRoomCreated: decodeWith(func(b eventBase, v *protocol.Room) Event {
		return &RoomCreated{eventBase: b, Room: *v}
	}),
	protocol.EventRoomUpdated: decodeWith(func(b eventBase, v *protocol.Room) Event {
		return &RoomUpdated{eventBase: b, Room: *v}
	}),
	protocol.EventRoomRemoved: decodeWith(func(b eventBase, v *protocol.RoomRemoved) Event {
		return &RoomRemoved{eventBase: b, RoomID: v.ID}
	}),
	protocol.EventRoomConnectionCreated: decodeWith(func(b eventBase, v *protocol.RoomConnection) Event {
		return &RoomConnectionCreated{eventBase: b, Connection: *v}
	}),
	protocol.EventRoomConnectionRemoved: decodeWith(func(b eventBase, v *protocol.RoomConnection) Event {
		return &RoomConnectionRemoved{eventBase: b, Connection: *v}
	}),
	protocol.EventUserUpdated: decodeWith(func(b eventBase, v *protocol.User) Event {
		return &UserUpdated{eventBase: b, User: *v}
	}),
	protocol.EventUserCurrentRoomUpdated: decodeWith(func(b eventBase, v *protocol.UserCurrentRoom) Event {
		return &UserCurrentRoomUpdated{eventBase: b, UserID: v.UserID, RoomID: v.RoomID}
	}),
	protocol.EventMessageCreated: decodeWith(func(b eventBase, v *protocol.Message) Event {
		return &MessageCreated{eventBase: b, Message: *v}
	}),
	protocol.EventMessageRemoved: decodeWith(func(b eventBase, v *protocol.MessageRemoved) Event {
		return &MessageRemoved{eventBase: b, MessageID: v.ID, RoomID: v.RoomID}
	}),
	protocol.EventUserStartedTyping: decodeWith(func(b eventBase, v *protocol.Typing) Event {
		return &UserStartedTyping{eventBase: b, Typing: *v}
	}),
	protocol.EventUserStoppedTyping: decodeWith(func(b eventBase, v *protocol.Typing) Event {
		return &UserStoppedTyping{eventBase: b, Typing: *v}
	}),
	protocol.EventBanCreated: decodeWith(func(b eventBase, v *protocol.Ban) Event {
		return &BanCreated{eventBase: b, Ban: *v}
	}),
	protocol.EventBanRemoved: decodeWith(func(b eventBase, v *protocol.Ban) Event {
		return &BanRemoved{eventBase: b, Ban: *v}
	}),
	protocol.EventUserPresenceUpdated: decodeWith(func(b eventBase, v *protocol.UserPresence) Event {
		return &UserPresenceUpdated{eventBase: b, UserID: v.UserID, Presence: v.Presence}
	}),
}
