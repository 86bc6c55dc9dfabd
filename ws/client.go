// Package ws is the public entry point: it re-exports the gateway client,
// the REST client and their events.
package ws

import (
	"context"

	"github.com/luciancaetano/knet"
	"github.com/luciancaetano/knet/internal/async"
	"github.com/luciancaetano/knet/internal/gateway"
	"github.com/luciancaetano/knet/internal/protocol"
	"github.com/luciancaetano/knet/internal/rest"
	"github.com/luciancaetano/knet/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type ListenerID = async.ListenerID

type GatewayConfig = gateway.Config
type Gateway = gateway.Client
type Event = gateway.Event
type Intents = gateway.Intents

type RESTConfig = rest.Config
type RESTClient = rest.Client
type RESTOptions = rest.Options
type StatusError = rest.StatusError
type RateLimited = rest.RateLimited
type RequestDeferred = rest.RequestDeferred

type Presence = protocol.Presence
type PresenceStatus = protocol.PresenceStatus
type User = protocol.User
type Room = protocol.Room
type Message = protocol.Message

// Gateway events.
type (
	Resumed                = gateway.Resumed
	Disconnected           = gateway.Disconnected
	Ready                  = gateway.Ready
	RoomCreated            = gateway.RoomCreated
	RoomUpdated            = gateway.RoomUpdated
	RoomRemoved            = gateway.RoomRemoved
	RoomConnectionCreated  = gateway.RoomConnectionCreated
	RoomConnectionRemoved  = gateway.RoomConnectionRemoved
	UserUpdated            = gateway.UserUpdated
	UserCurrentRoomUpdated = gateway.UserCurrentRoomUpdated
	MessageCreated         = gateway.MessageCreated
	MessageRemoved         = gateway.MessageRemoved
	UserStartedTyping      = gateway.UserStartedTyping
	UserStoppedTyping      = gateway.UserStoppedTyping
	BanCreated             = gateway.BanCreated
	BanRemoved             = gateway.BanRemoved
	UserPresenceUpdated    = gateway.UserPresenceUpdated
)

const (
	IntentRooms           = gateway.IntentRooms
	IntentRoomConnections = gateway.IntentRoomConnections
	IntentMessages        = gateway.IntentMessages
	IntentBans            = gateway.IntentBans
	IntentUsers           = gateway.IntentUsers
	IntentTyping          = gateway.IntentTyping
	IntentPresence        = gateway.IntentPresence
	IntentsAll            = gateway.IntentsAll
)

const (
	PresenceOnline    = protocol.PresenceOnline
	PresenceIdle      = protocol.PresenceIdle
	PresenceBusy      = protocol.PresenceBusy
	PresenceInvisible = protocol.PresenceInvisible
	PresenceOffline   = protocol.PresenceOffline
)

var (
	_ knet.GatewaySession = (*Gateway)(nil)
	_ knet.Requester      = (*RESTClient)(nil)
)

// NewGateway creates a disconnected gateway client.
//
// Example:
//
//	gw := ws.NewGateway(ws.GatewayConfig{
//	    Address: "wss://chat.example.com/gateway",
//	    Intents: ws.IntentMessages,
//	})
//	if err := gw.Connect(ctx, ""); err != nil {
//	    return err
//	}
func NewGateway(cfg GatewayConfig) *Gateway {
	return gateway.New(cfg)
}

// Subscribe registers fn for every event of type E published by gw.
func Subscribe[E Event](ctx context.Context, gw *Gateway, fn func(E)) (ListenerID, error) {
	return gateway.Subscribe(ctx, gw, fn)
}

// ParseIntents converts intent names such as "messages" into a mask.
func ParseIntents(names []string) (Intents, error) {
	return gateway.ParseIntents(names)
}

// NewRESTClient builds a REST client and its rate limiting transport chain.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	return rest.NewClient(cfg)
}

// DefaultRateLimitConfig returns the default outbound send rate for the gateway
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
