package protocol

import "blockpatterns.dev/internal/verify"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Worlds and Patterns filter the MATCH stream; empty means everything.
	Worlds   []string `json:"worlds,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Worlds          []WorldRef     `json:"worlds"`
	Catalogs        CatalogDigests `json:"catalogs"`
	IndexVersion    uint64         `json:"index_version"`
}

type WorldRef struct {
	WorldID   string `json:"world_id"`
	MinY      int    `json:"min_y"`
	MaxY      int    `json:"max_y"`
	BoundaryR int    `json:"boundary_r,omitempty"`
}

type CatalogDigests struct {
	BlockPalette   DigestRef `json:"block_palette"`
	TagsDigest     string    `json:"tags_digest"`
	PatternsDigest string    `json:"patterns_digest"`
	Patterns       int       `json:"patterns"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// SET_BLOCK (client -> server): one block changed. Block uses bracket
// syntax, e.g. "minecraft:oak_stairs[facing=north,half=bottom]".
type SetBlockMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
	World           string `json:"world"`
	Pos             [3]int `json:"pos"`
	Block           string `json:"block"`
	// Kind is "placed" (default), "broken" or "updated".
	Kind string `json:"kind,omitempty"`
}

// LOAD_SECTION (client -> server): replace a 16x16x16 section. RLE is the
// base64 varint run-length encoding of palette ids in x, z, y order.
type LoadSectionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
	World           string `json:"world"`
	Section         [3]int `json:"section"`
	PaletteDigest   string `json:"palette_digest,omitempty"`
	RLE             string `json:"rle"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Matches         int    `json:"matches"`
}

// MATCH (server -> client)
type MatchMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Match           verify.Match `json:"match"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: msg}
}
