package types

type RunMode string

const (
	// ModeLocal runs the API server and the billing scheduler in one process
	ModeLocal RunMode = "local"
	// ModeAPI runs just the API server
	ModeAPI RunMode = "api"
	// ModeScheduler runs just the recurring billing scheduler
	ModeScheduler RunMode = "scheduler"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
)

// LateFeeType selects the late fee policy applied to recurring invoices
// that keep failing.
type LateFeeType string

const (
	LateFeeTypeNone       LateFeeType = "none"
	LateFeeTypeFlat       LateFeeType = "flat"
	LateFeeTypePercentage LateFeeType = "percentage"
)
