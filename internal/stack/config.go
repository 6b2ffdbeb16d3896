package stack

import (
	"time"

	"github.com/cyfs-core/bdt-ndn/internal/control"
	"github.com/cyfs-core/bdt-ndn/internal/proto"
)

// RouterConfig configures the handler registry's persistence (spec.md
// §6.3).
type RouterConfig struct {
	PersistPath string
}

// DefaultRouterConfig returns the zero-persistence default (no TOML file,
// suitable for tests and embedding).
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{}
}

// SessionConfig holds session resend/timeout cadence and optional speed
// pacing settings (spec.md §4.4, SPEC_FULL.md §12 item 2). New does not
// read it; no session built by the stack takes its settings from here.
type SessionConfig struct {
	Timeout          time.Duration
	ResendInterval   time.Duration
	TickerCadence    time.Duration
	LimitBytesPerSec int // 0 disables pacing
	LimitBurstBytes  int
}

// DefaultSessionConfig mirrors proto's resend/timeout defaults, with
// pacing off.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Timeout:        proto.DefaultSessionTimeout,
		ResendInterval: proto.DefaultResendInterval,
		TickerCadence:  proto.DefaultTickerCadence,
	}
}

// DownloadConfig holds the downloader's concurrency and piece payload size
// (spec.md §4.5). New passes PayloadSize to the forward tier;
// ConcurrentChunkFetch is not read.
type DownloadConfig struct {
	ConcurrentChunkFetch int
	PayloadSize          uint32
}

// DefaultDownloadConfig mirrors proto's defaults.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		ConcurrentChunkFetch: proto.DefaultConcurrentChunkFetch,
		PayloadSize:          proto.MaxPayload,
	}
}

// ControlConfig configures the admin HTTP interface (spec.md §4.12, §6.4).
type ControlConfig struct {
	Mode         control.Mode
	RequireToken bool
}

// DefaultControlConfig runs as an OOD daemon with token auth required
// (spec.md §4.12 "public/IPv6 binds require a token").
func DefaultControlConfig() ControlConfig {
	return ControlConfig{Mode: control.ModeOodDaemon, RequireToken: true}
}

// StackConfig aggregates every component's configuration into the single
// value New needs to build a StackContext (SPEC_FULL.md §10.3).
type StackConfig struct {
	Router   RouterConfig
	Session  SessionConfig
	Download DownloadConfig
	Control  ControlConfig
}

// DefaultConfig returns the recommended configuration for a standalone OOD
// daemon process.
func DefaultConfig() StackConfig {
	return StackConfig{
		Router:   DefaultRouterConfig(),
		Session:  DefaultSessionConfig(),
		Download: DefaultDownloadConfig(),
		Control:  DefaultControlConfig(),
	}
}
