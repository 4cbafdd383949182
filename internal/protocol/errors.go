package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrProtoHandshake  = "E_PROTO_HANDSHAKE"

	// World routing/state.
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"
	ErrOutOfWorld    = "E_OUT_OF_WORLD"

	// Request layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknownBlock = "E_UNKNOWN_BLOCK"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrProtoHandshake:  {},
	ErrWorldNotFound:   {},
	ErrOutOfWorld:      {},
	ErrBadRequest:      {},
	ErrUnknownBlock:    {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
