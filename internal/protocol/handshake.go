package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// HandshakePrefix marks a subprotocol value that carries encoded headers.
const HandshakePrefix = "h_"

// ErrInvalidHandshake is returned for malformed handshake values.
var ErrInvalidHandshake = errors.New("invalid handshake")

// EncodeHandshake packs connection headers into a single subprotocol token:
// "h_" followed by the unpadded base64url encoding of a JSON object.
// Some transports only let the client negotiate that one value at connect time.
func EncodeHandshake(headers map[string]string) (string, error) {
	raw, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	return HandshakePrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeHandshake reverses EncodeHandshake.
func DecodeHandshake(value string) (map[string]string, error) {
	encoded, ok := strings.CutPrefix(value, HandshakePrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidHandshake, HandshakePrefix)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}
	return headers, nil
}
