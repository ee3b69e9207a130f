// Package protocol defines the JSON messages spoken to a world server over
// one websocket: a HELLO/WELCOME handshake, correlated REQ/RES pairs for the
// world-control primitives, and unsolicited BLOCK_CHANGE pushes.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello       = "HELLO"
	TypeWelcome     = "WELCOME"
	TypeReq         = "REQ"
	TypeRes         = "RES"
	TypeBlockChange = "BLOCK_CHANGE"
)

// Request operations.
const (
	OpFreeze     = "FREEZE"
	OpResume     = "RESUME"
	OpAdvance    = "ADVANCE"
	OpSetBlock   = "SET_BLOCK"
	OpFill       = "FILL"
	OpQueryBlock = "QUERY_BLOCK"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz  int    `json:"tick_rate_hz"`
	Seed        int64  `json:"seed"`
	CurrentTick uint64 `json:"current_tick"`
}

// ReqMsg carries one world-control request. Exactly the fields for its Op are
// set. Blocks travel in their canonical "id[k=v,...]" string form.
type ReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              uint64 `json:"id"`
	Op              string `json:"op"`

	Ticks int     `json:"ticks,omitempty"` // ADVANCE
	Pos   *[3]int `json:"pos,omitempty"`   // SET_BLOCK, QUERY_BLOCK
	Min   *[3]int `json:"min,omitempty"`   // FILL
	Max   *[3]int `json:"max,omitempty"`   // FILL
	Block string  `json:"block,omitempty"` // SET_BLOCK, FILL
}

// ResMsg answers the REQ with the matching ID.
type ResMsg struct {
	Type string `json:"type"`
	ID   uint64 `json:"id"`
	OK   bool   `json:"ok"`

	Block string `json:"block,omitempty"` // QUERY_BLOCK
	Tick  uint64 `json:"tick,omitempty"`  // ADVANCE: tick after the step

	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BlockChangeMsg is pushed by servers that stream world mutations.
type BlockChangeMsg struct {
	Type string `json:"type"`
	Tick uint64 `json:"tick"`
	Pos  [3]int `json:"pos"`
	Old  string `json:"old"`
	New  string `json:"new"`
}
