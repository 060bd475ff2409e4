package domain

import (
	"strings"
	"time"
)

type BotState string

const (
	BotStateUnknown     BotState = "unknown"
	BotStatePending     BotState = "pending"
	BotStateStarting    BotState = "starting"
	BotStateRunning     BotState = "running"
	BotStateStopping    BotState = "stopping"
	BotStateStopped     BotState = "stopped"
	BotStateFailed      BotState = "failed"
	BotStateNotDeployed BotState = "not_deployed"
	BotStateError       BotState = "error"
)

// ParseBotState normalizes a status string reported by a bot event.
func ParseBotState(raw string) BotState {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	if normalized == "" {
		return BotStateUnknown
	}
	return BotState(normalized)
}

const (
	PhasePending  = "Pending"
	PhaseRunning  = "Running"
	PhaseFailed   = "Failed"
	PhaseNotFound = "NotFound"
)

// PodStatus is what the orchestration backend reports for a deployment.
type PodStatus struct {
	Ready  bool   `json:"ready"`
	Phase  string `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

// Health is the bot's self-reported heartbeat.
type Health struct {
	LastProcessTs int64 `json:"last_process_ts"`
}

func (h Health) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(h.LastProcessTs, 0))
}

type BotStatus struct {
	Status          BotState
	Running         bool
	Ready           bool
	Phase           string
	Reason          string
	OpenTradesCount int
}

func UnknownBotStatus() BotStatus {
	return BotStatus{Status: BotStateUnknown}
}

type StatusInput struct {
	Pod PodStatus
	// Health is nil when the health endpoint could not be read.
	Health              *Health
	Now                 time.Time
	HeartbeatInterval   time.Duration
	ThresholdMultiplier float64
}

const (
	DefaultHeartbeatInterval   = 60 * time.Second
	DefaultThresholdMultiplier = 2
)

func (in StatusInput) StalenessThreshold() time.Duration {
	interval := in.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	multiplier := in.ThresholdMultiplier
	if multiplier <= 0 {
		multiplier = DefaultThresholdMultiplier
	}
	return time.Duration(float64(interval) * multiplier)
}

// PhaseState maps a pod phase to the interim status used before health is known.
// A ready Running pod yields unknown: only the heartbeat can tell a live bot from a
// wedged one.
func PhaseState(pod PodStatus) BotState {
	switch pod.Phase {
	case PhasePending:
		return BotStatePending
	case PhaseFailed:
		return BotStateFailed
	case PhaseNotFound:
		return BotStateNotDeployed
	case PhaseRunning:
		if !pod.Ready {
			return BotStateStarting
		}
	}
	return BotStateUnknown
}

// DeriveBotStatus computes status and liveness from a pod poll and an optional
// heartbeat. A heartbeat, when present, overrides the phase-derived status.
func DeriveBotStatus(in StatusInput) (BotState, bool) {
	state := PhaseState(in.Pod)
	if in.Health == nil {
		return state, false
	}

	if in.Health.Age(in.Now) < in.StalenessThreshold() {
		return BotStateRunning, true
	}
	return BotStateStopped, false
}
