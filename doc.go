// Package knet is a client runtime for a chat platform's hybrid REST and
// WebSocket API.
//
// It keeps one persistent real-time gateway session over WebSocket while
// issuing rate-limited HTTP requests against the same service's REST surface.
//
// # Architecture
//
// The gateway session runs two pipelines over one connection. The receive loop
// reassembles frames into messages, decodes each JSON payload and emits a typed
// event. The send loop drains an unbounded outbound channel in enqueue order, so
// concurrent callers of UpdatePresence are funneled through one ordered writer.
//
// REST calls traverse a chain of http.RoundTripper middleware:
//
//	RetryHandler -> RouteLimiter -> GlobalLimiter -> transport
//
// The retry handler backs off on 5xx responses. The route limiter keeps one
// window per (method, URL) and defers requests proactively when the local
// budget is spent. The global limiter gates every request on one shared window.
// Both limiters resynchronize from X-RateLimit-* response headers and retry
// on 429.
//
// # Quick Start
//
//	import "github.com/luciancaetano/knet/ws"
//
//	gw := ws.NewGateway(ws.GatewayConfig{
//	    Address: "wss://chat.example.com/gateway",
//	    Intents: ws.IntentMessages | ws.IntentRooms,
//	    Token:   os.Getenv("CHAT_TOKEN"),
//	})
//
//	ws.Subscribe(ctx, gw, func(e *ws.MessageCreated) {
//	    log.Printf("%s: %s", e.Message.AuthorID, e.Message.Content)
//	})
//
//	if err := gw.Connect(ctx, ""); err != nil {
//	    log.Fatal(err)
//	}
//	<-gw.Done()
//
//	api, err := ws.NewRESTClient(ws.RESTConfig{BaseURL: "https://chat.example.com/api", Token: token})
//	err = api.Do(ctx, http.MethodPost, "/rooms/"+roomID+"/messages", body, &msg)
//
// # Handshake
//
// Browser-compatible transports only let the client negotiate one value at
// connect time, the subprotocol. Connection metadata (X-Intents, Authorization,
// X-Presence, X-SessionId) is therefore sent as "h_" followed by the base64url
// encoding of a JSON object. Set NativeHeaders to send real HTTP headers instead.
//
// # Close Codes
//
//   - 1000: the server closed the session
//   - 1003: the server sent a binary message
//   - 1007: a payload could not be decoded
//   - 1011: any other receive failure
//
// # Important
//
//   - Event listeners run synchronously on the receive loop; hand long work off
//     to another goroutine.
//   - Only one session per gateway client may be open at a time.
package knet
