package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName is the tag of a Dispatch payload.
type EventName string

const (
	EventReady                  EventName = "Ready"
	EventRoomCreated            EventName = "RoomCreated"
	EventRoomUpdated            EventName = "RoomUpdated"
	EventRoomRemoved            EventName = "RoomRemoved"
	EventRoomConnectionCreated  EventName = "RoomConnectionCreated"
	EventRoomConnectionRemoved  EventName = "RoomConnectionRemoved"
	EventUserUpdated            EventName = "UserUpdated"
	EventUserCurrentRoomUpdated EventName = "UserCurrentRoomUpdated"
	EventMessageCreated         EventName = "MessageCreated"
	EventMessageRemoved         EventName = "MessageRemoved"
	EventUserStartedTyping      EventName = "UserStartedTyping"
	EventUserStoppedTyping      EventName = "UserStoppedTyping"
	EventBanCreated             EventName = "BanCreated"
	EventBanRemoved             EventName = "BanRemoved"
	EventUserPresenceUpdated    EventName = "UserPresenceUpdated"

	// EventUpdatePresence is only ever sent by the client.
	EventUpdatePresence EventName = "UpdatePresence"
)

// InboundEvents lists every event name the server dispatches.
var InboundEvents = []EventName{
	EventReady,
	EventRoomCreated,
	EventRoomUpdated,
	EventRoomRemoved,
	EventRoomConnectionCreated,
	EventRoomConnectionRemoved,
	EventUserUpdated,
	EventUserCurrentRoomUpdated,
	EventMessageCreated,
	EventMessageRemoved,
	EventUserStartedTyping,
	EventUserStoppedTyping,
	EventBanCreated,
	EventBanRemoved,
	EventUserPresenceUpdated,
}

// Validator is implemented by every event data schema.
type Validator interface {
	Validate() error
}

// DecodeData strictly decodes raw event data into T and validates it.
func DecodeData[T any, PT interface {
	*T
	Validator
}](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	v := PT(new(T))
	if err := strictUnmarshal(raw, v); err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return (*T)(v), nil
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// PresenceStatus is a user's availability.
type PresenceStatus string

const (
	PresenceOnline    PresenceStatus = "online"
	PresenceIdle      PresenceStatus = "idle"
	PresenceBusy      PresenceStatus = "busy"
	PresenceInvisible PresenceStatus = "invisible"
	PresenceOffline   PresenceStatus = "offline"
)

// Presence is the data of UpdatePresence and part of user schemas.
type Presence struct {
	Status   PresenceStatus `json:"status"`
	Activity string         `json:"activity,omitempty"`
}

func (p *Presence) Validate() error {
	switch p.Status {
	case PresenceOnline, PresenceIdle, PresenceBusy, PresenceInvisible, PresenceOffline:
		return nil
	case "":
		return fmt.Errorf("status is required")
	default:
		return fmt.Errorf("unknown presence status %q", p.Status)
	}
}

type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName,omitempty"`
	Presence    *Presence `json:"presence,omitempty"`
}

func (u *User) Validate() error {
	if err := firstError(required("id", u.ID), required("username", u.Username)); err != nil {
		return err
	}
	if u.Presence != nil {
		return u.Presence.Validate()
	}
	return nil
}

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Room) Validate() error {
	return firstError(required("id", r.ID), required("name", r.Name), required("ownerId", r.OwnerID))
}

type Message struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	AuthorID  string     `json:"authorId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

func (m *Message) Validate() error {
	if err := firstError(required("id", m.ID), required("roomId", m.RoomID), required("authorId", m.AuthorID)); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}

type MessageRemoved struct {
	ID     string `json:"id"`
	RoomID string `json:"roomId"`
}

func (m *MessageRemoved) Validate() error {
	return firstError(required("id", m.ID), required("roomId", m.RoomID))
}

type RoomRemoved struct {
	ID string `json:"id"`
}

func (r *RoomRemoved) Validate() error {
	return required("id", r.ID)
}

type Ban struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

func (b *Ban) Validate() error {
	return firstError(required("roomId", b.RoomID), required("userId", b.UserID))
}

type RoomConnection struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (c *RoomConnection) Validate() error {
	return firstError(required("roomId", c.RoomID), required("userId", c.UserID))
}

// UserCurrentRoom reports the room a user is in; a nil RoomID means none.
type UserCurrentRoom struct {
	UserID string  `json:"userId"`
	RoomID *string `json:"roomId"`
}

func (u *UserCurrentRoom) Validate() error {
	return required("userId", u.UserID)
}

type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

func (t *Typing) Validate() error {
	return firstError(required("roomId", t.RoomID), required("userId", t.UserID))
}

type UserPresence struct {
	UserID   string   `json:"userId"`
	Presence Presence `json:"presence"`
}

func (u *UserPresence) Validate() error {
	if err := required("userId", u.UserID); err != nil {
		return err
	}
	return u.Presence.Validate()
}

// Ready is the first event of a new session.
type Ready struct {
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
	Rooms     []Room `json:"rooms"`
}

func (r *Ready) Validate() error {
	if err := required("sessionId", r.SessionID); err != nil {
		return err
	}
	if err := r.User.Validate(); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	for i := range r.Rooms {
		if err := r.Rooms[i].Validate(); err != nil {
			return fmt.Errorf("rooms[%d]: %w", i, err)
		}
	}
	return nil
}
