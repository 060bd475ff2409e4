package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveBotStatusMatrix(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	heartbeat := func(age time.Duration) *Health {
		return &Health{LastProcessTs: now.Add(-age).Unix()}
	}

	tests := []struct {
		name        string
		pod         PodStatus
		health      *Health
		wantState   BotState
		wantRunning bool
	}{
		{name: "pending without health", pod: PodStatus{Phase: PhasePending}, wantState: BotStatePending},
		{name: "failed without health", pod: PodStatus{Phase: PhaseFailed}, wantState: BotStateFailed},
		{name: "not found maps to not deployed", pod: PodStatus{Phase: PhaseNotFound}, wantState: BotStateNotDeployed},
		{name: "running not ready is starting", pod: PodStatus{Phase: PhaseRunning}, wantState: BotStateStarting},
		{name: "running ready without health is unknown", pod: PodStatus{Phase: PhaseRunning, Ready: true}, wantState: BotStateUnknown},
		{name: "unrecognized phase is unknown", pod: PodStatus{Phase: "Succeeded"}, wantState: BotStateUnknown},
		{
			name:        "fresh heartbeat is running",
			pod:         PodStatus{Phase: PhaseRunning, Ready: true},
			health:      heartbeat(30 * time.Second),
			wantState:   BotStateRunning,
			wantRunning: true,
		},
		{
			name:      "stale heartbeat overrides ready running",
			pod:       PodStatus{Phase: PhaseRunning, Ready: true},
			health:    heartbeat(200 * time.Second),
			wantState: BotStateStopped,
		},
		{
			name:      "stale heartbeat overrides running not ready",
			pod:       PodStatus{Phase: PhaseRunning},
			health:    heartbeat(200 * time.Second),
			wantState: BotStateStopped,
		},
		{
			name:      "heartbeat exactly at threshold is stale",
			pod:       PodStatus{Phase: PhaseRunning, Ready: true},
			health:    heartbeat(120 * time.Second),
			wantState: BotStateStopped,
		},
		{
			name:        "fresh heartbeat overrides pending phase",
			pod:         PodStatus{Phase: PhasePending},
			health:      heartbeat(time.Second),
			wantState:   BotStateRunning,
			wantRunning: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			state, running := DeriveBotStatus(StatusInput{
				Pod:                 tc.pod,
				Health:              tc.health,
				Now:                 now,
				HeartbeatInterval:   60 * time.Second,
				ThresholdMultiplier: 2,
			})
			assert.Equal(t, tc.wantState, state)
			assert.Equal(t, tc.wantRunning, running)
		})
	}
}

func TestStalenessThresholdDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 120*time.Second, StatusInput{}.StalenessThreshold())
	assert.Equal(t, 45*time.Second, StatusInput{HeartbeatInterval: 30 * time.Second, ThresholdMultiplier: 1.5}.StalenessThreshold())
}

func TestParseBotState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BotStateRunning, ParseBotState(" RUNNING "))
	assert.Equal(t, BotStateNotDeployed, ParseBotState("not deployed"))
	assert.Equal(t, BotStateUnknown, ParseBotState(""))
}

func TestBotEventStatusValue(t *testing.T) {
	t.Parallel()

	status, ok := BotEvent{Type: EventStatus, Data: []byte(`{"status":"stopped"}`)}.StatusValue()
	assert.True(t, ok)
	assert.Equal(t, "stopped", status)

	_, ok = BotEvent{Type: EventEntry, Data: []byte(`{"status":"stopped"}`)}.StatusValue()
	assert.False(t, ok)

	_, ok = BotEvent{Type: EventStatus, Data: []byte(`"not an object"`)}.StatusValue()
	assert.False(t, ok)

	assert.True(t, EventExitFill.AffectsTrades())
	assert.False(t, EventWarning.AffectsTrades())
}
