package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World control.
	ErrWorldBusy     = "E_WORLD_BUSY"
	ErrNotFrozen     = "E_NOT_FROZEN"
	ErrOutOfBounds   = "E_OUT_OF_BOUNDS"
	ErrUnknownBlock  = "E_UNKNOWN_BLOCK"
	ErrUnsupportedOp = "E_UNSUPPORTED_OP"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrNotFrozen:       {},
	ErrOutOfBounds:     {},
	ErrUnknownBlock:    {},
	ErrUnsupportedOp:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
