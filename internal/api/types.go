package api

import (
	"github.com/MJE43/stake-wheel-go/internal/engine"
	"github.com/MJE43/stake-wheel-go/internal/scan"
	"github.com/MJE43/stake-wheel-go/internal/session"
	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidSeed   = "invalid_seed"
	ErrTypeInvalidNonce  = "invalid_nonce"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	// Wheel and session errors
	ErrTypeSessionNotFound  = "session_not_found"
	ErrTypeSessionClosed    = "session_closed"
	ErrTypeSpinInProgress   = "spin_in_progress"
	ErrTypeNoSpinInProgress = "no_spin_in_progress"
	ErrTypeSpinMismatch     = "spin_mismatch"
	ErrTypeRunNotFound      = "run_not_found"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryWheel      ErrorCategory = "wheel"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidNonce, ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeSessionNotFound, ErrTypeSessionClosed, ErrTypeSpinInProgress,
		ErrTypeNoSpinInProgress, ErrTypeSpinMismatch, ErrTypeRunNotFound:
		return CategoryWheel
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// SeedsInput carries seeds in request bodies.
type SeedsInput struct {
	Server string `json:"server" validate:"required,max=256"`
	Client string `json:"client" validate:"required,max=256"`
}

func (s SeedsInput) engine() engine.Seeds {
	return engine.Seeds{Server: s.Server, Client: s.Client}
}

// SeedsEcho is what responses echo back: never the raw server seed.
type SeedsEcho struct {
	ServerSeedHash string `json:"server_seed_hash"`
	Client         string `json:"client"`
}

func echoSeeds(s SeedsInput) SeedsEcho {
	return SeedsEcho{ServerSeedHash: engine.HashServerSeed(s.Server), Client: s.Client}
}

// TiersResponse lists the difficulty tiers.
type TiersResponse struct {
	Tiers         []wheel.TierSpec `json:"tiers"`
	SegmentCounts []int            `json:"segment_counts"`
	DefaultCount  int              `json:"default_segment_count"`
	DefaultTier   wheel.Tier       `json:"default_tier"`
	EngineVersion string           `json:"engine_version"`
}

// LegendResponse lists color meanings.
type LegendResponse struct {
	Legend        []wheel.LegendEntry `json:"legend"`
	EngineVersion string              `json:"engine_version"`
}

// GenerateRequest asks for a wheel. With seeds the wheel is the provably-fair
// wheel for that nonce.
type GenerateRequest struct {
	SegmentCount int         `json:"segment_count" validate:"required,min=1"`
	Tier         string      `json:"tier" validate:"required"`
	Seeds        *SeedsInput `json:"seeds,omitempty"`
	Nonce        uint64      `json:"nonce,omitempty"`
}

type GenerateResponse struct {
	Wheel         wheel.Wheel              `json:"wheel"`
	Component     []wheel.ComponentSegment `json:"component"`
	Stats         wheel.Stats              `json:"stats"`
	Seeds         *SeedsEcho               `json:"seeds,omitempty"`
	Nonce         *uint64                  `json:"nonce,omitempty"`
	EngineVersion string                   `json:"engine_version"`
}

// VerifyRequest replays one spin. Index, when set, is checked against the
// replayed winning index.
type VerifyRequest struct {
	Seeds        SeedsInput `json:"seeds"`
	Nonce        uint64     `json:"nonce"`
	SegmentCount int        `json:"segment_count" validate:"required,min=1"`
	Tier         string     `json:"tier" validate:"required"`
	Index        *int       `json:"index,omitempty" validate:"omitempty,min=0"`
}

type VerifyEcho struct {
	Seeds        SeedsEcho `json:"seeds"`
	Nonce        uint64    `json:"nonce"`
	SegmentCount int       `json:"segment_count"`
	Tier         string    `json:"tier"`
	Index        *int      `json:"index,omitempty"`
}

type VerifyResponse struct {
	Outcome       wheel.Outcome `json:"outcome"`
	Valid         bool          `json:"valid"`
	IndexMatches  *bool         `json:"index_matches,omitempty"`
	EngineVersion string        `json:"engine_version"`
	Echo          VerifyEcho    `json:"echo"`
}

// SeedHashRequest represents a seed hashing request
type SeedHashRequest struct {
	ServerSeed string `json:"server_seed" validate:"required,max=256"`
}

// SeedHashResponse represents a seed hashing response
type SeedHashResponse struct {
	Hash          string `json:"hash"`
	EngineVersion string `json:"engine_version"`
}

// ScanRequest represents a scan operation request
type ScanRequest struct {
	Seeds        SeedsInput `json:"seeds"`
	SegmentCount int        `json:"segment_count" validate:"required,min=1"`
	Tier         string     `json:"tier" validate:"required"`
	NonceStart   uint64     `json:"nonce_start"`
	NonceEnd     uint64     `json:"nonce_end" validate:"gtefield=NonceStart"`
	TargetOp     string     `json:"target_op" validate:"required,oneof=eq gt ge lt le between outside"`
	TargetVal    float64    `json:"target_val"`
	TargetVal2   float64    `json:"target_val2,omitempty"`
	Tolerance    float64    `json:"tolerance" validate:"min=0"`
	Limit        int        `json:"limit,omitempty" validate:"min=0"`
	TimeoutMs    int        `json:"timeout_ms,omitempty" validate:"min=0"`
}

type ScanEcho struct {
	Seeds        SeedsEcho `json:"seeds"`
	SegmentCount int       `json:"segment_count"`
	Tier         string    `json:"tier"`
	NonceStart   uint64    `json:"nonce_start"`
	NonceEnd     uint64    `json:"nonce_end"`
	TargetOp     string    `json:"target_op"`
	TargetVal    float64   `json:"target_val"`
	TargetVal2   float64   `json:"target_val2,omitempty"`
	Tolerance    float64   `json:"tolerance"`
	Limit        int       `json:"limit"`
	TimeoutMs    int       `json:"timeout_ms"`
}

// ScanResponse represents the complete scan response
type ScanResponse struct {
	RunID         string       `json:"run_id,omitempty"`
	Hits          []scan.Hit   `json:"hits"`
	Summary       scan.Summary `json:"summary"`
	EngineVersion string       `json:"engine_version"`
	Echo          ScanEcho     `json:"echo"`
}

// CreateSessionRequest starts a session. Seeds enable provably-fair spins.
type CreateSessionRequest struct {
	SegmentCount int         `json:"segment_count,omitempty" validate:"omitempty,min=1"`
	Tier         string      `json:"tier,omitempty"`
	Seeds        *SeedsInput `json:"seeds,omitempty"`
	Nonce        uint64      `json:"nonce,omitempty"`
}

type SetTierRequest struct {
	Tier string `json:"tier" validate:"required"`
}

type SetSegmentsRequest struct {
	SegmentCount int `json:"segment_count" validate:"required,min=1"`
}

type CompleteSpinRequest struct {
	SpinID string `json:"spin_id,omitempty" validate:"omitempty,uuid"`
}

// SessionResponse wraps a session state for the wheel component.
type SessionResponse struct {
	Session       session.State            `json:"session"`
	Component     []wheel.ComponentSegment `json:"component"`
	EngineVersion string                   `json:"engine_version"`
}

type SpinResponse struct {
	Spin          session.SpinInfo `json:"spin"`
	EngineVersion string           `json:"engine_version"`
}

type CompleteSpinResponse struct {
	Outcome       session.SpinOutcome `json:"outcome"`
	EngineVersion string              `json:"engine_version"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status        string `json:"status"`
	EngineVersion string `json:"engine_version"`
	Timestamp     string `json:"timestamp"`
}
