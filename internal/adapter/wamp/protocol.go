// WAMP v2 basic-profile subset: session establishment, challenge-response
// authentication, and caller-side RPC, serialized with msgpack.
package wamp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message type codes.
const (
	msgHello        = 1
	msgWelcome      = 2
	msgAbort        = 3
	msgChallenge    = 4
	msgAuthenticate = 5
	msgGoodbye      = 6
	msgError        = 8
	msgCall         = 48
	msgResult       = 50
)

// Error URIs signalling that credentials were rejected by the router.
const (
	uriNotAuthorized = "wamp.error.not_authorized"
	uriAuthFailed    = "wamp.error.authentication_failed"
)

const subprotocol = "wamp.2.msgpack"

func encodeMessage(elements ...any) ([]byte, error) {
	return msgpack.Marshal(elements)
}

func decodeMessage(data []byte) (code int64, elements []any, err error) {
	if err := msgpack.Unmarshal(data, &elements); err != nil {
		return 0, nil, fmt.Errorf("decode message: %w", err)
	}
	if len(elements) == 0 {
		return 0, nil, fmt.Errorf("empty message")
	}
	code, ok := asInt64(elements[0])
	if !ok {
		return 0, nil, fmt.Errorf("non-numeric message code %v", elements[0])
	}
	return code, elements[1:], nil
}

// craSignature computes the WAMP-CRA response: the server-issued nonce
// signed with the shared secret.
func craSignature(secret, challenge string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// asInt64 normalizes the numeric types msgpack may decode into.
func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// asMap normalizes the map types msgpack may decode into.
func asMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if s, ok := key.(string); ok {
				out[s] = val
			}
		}
		return out
	}
	return nil
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprintf("%v", value)
}

func asSlice(value any) []any {
	if v, ok := value.([]any); ok {
		return v
	}
	return nil
}
