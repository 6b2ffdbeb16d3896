// Package proto defines cross-cutting protocol constants for the piece
// envelope (spec.md §6.1) and the session/resend cadence (spec.md §4.4),
// generalized from the teacher's pkg/constants/defaults.go defaults table.
package proto

import "time"

// Piece envelope (§6.1). MaxPayload is the protocol-agreed maximum payload
// size of a single piece; ExtendPieceSize is the additional envelope bytes
// Raptor pieces carry over a stream piece (degree + FEC bookkeeping).
const (
	MaxPayload      = 16 * 1024 // 16 KiB per piece
	ExtendPieceSize = 8         // bytes, Raptor index + degree
	ProtocolVersion = 1
)

// Piece command codes, analogous to the teacher's Kind* message constants.
const (
	CmdPieceStream uint16 = 1
	CmdPieceRaptor uint16 = 2
	CmdSnCall      uint16 = 10 // session-establishment "call" packet
	CmdSnResp      uint16 = 11
)

// Session timing defaults (spec.md §4.4, §5).
const (
	DefaultSessionTimeout  = 30 * time.Second
	DefaultResendInterval  = 2 * time.Second
	DefaultTickerCadence   = 500 * time.Millisecond
)

// Downloader/session concurrency defaults.
const (
	DefaultConcurrentChunkFetch = 4
)

// ObjectMap hub/list split threshold (spec.md §9 design note): a node is
// stored as a hub of sub-maps once it holds more than this many entries.
// The store lays a node out again from its full content on every Put, so a
// node holding this many or fewer entries is stored flat again; the store
// does not read ObjectMapMergeThreshold.
const (
	ObjectMapSplitThreshold = 128
	ObjectMapMergeThreshold = ObjectMapSplitThreshold / 2
)

// Zone/target resolution cache defaults (spec.md §4.11).
const (
	ZoneResolveCacheSize = 4096
	ZoneResolveCacheTTL  = 30 * time.Minute
)
