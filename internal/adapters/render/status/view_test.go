package status

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
)

func TestRenderSingleBotStatus(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render([]application.StatusRow{
		{
			Strategy: "grid_lq2k",
			Status: domain.BotStatus{
				Status:          domain.BotStateRunning,
				Running:         true,
				Ready:           true,
				Phase:           domain.PhaseRunning,
				OpenTradesCount: 3,
			},
			Connected: true,
		},
	}, RenderOptions{Now: now})

	require.NoError(t, err)
	assert.Contains(t, output, "bots: 1  live: 1")
	assert.NotContains(t, output, "needs attention")
	assert.Contains(t, output, "as of 11:00:00")
	assert.Contains(t, output, "grid_lq2k")
	assert.Contains(t, output, "[running]")
	assert.Contains(t, output, "pod: Running, ready: yes, live: yes")
	assert.Contains(t, output, "open trades: 3")
	assert.Contains(t, output, "events: connected")
	assert.NotContains(t, output, "reason:")
}

func TestRenderMultiBotStatus(t *testing.T) {
	output, err := Render([]application.StatusRow{
		{
			Strategy: "grid_lq2k",
			Status:   domain.BotStatus{Status: domain.BotStateNotDeployed, Phase: domain.PhaseNotFound},
		},
		{
			Strategy:  "momentum_lq3a",
			Status:    domain.BotStatus{Status: domain.BotStateFailed, Phase: domain.PhaseFailed, Reason: "CrashLoopBackOff"},
			StreamErr: errors.New("maximum reconnection attempts reached"),
		},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "bots: 2  live: 0  needs attention: 1")
	assert.Less(t, strings.Index(output, "momentum_lq3a"), strings.Index(output, "grid_lq2k"))
	assert.NotContains(t, output, "as of")
	assert.Contains(t, output, "[not deployed]")
	assert.Contains(t, output, "events: offline")
	assert.Contains(t, output, "[failed]")
	assert.Contains(t, output, "reason: CrashLoopBackOff")
	assert.Contains(t, output, "events: maximum reconnection attempts reached")
}

func TestRenderEmptyBoard(t *testing.T) {
	output, err := Render(nil, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "bots: 0")
	assert.Contains(t, output, "No bots to show.")
}

func TestStateLabelDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, "[unknown]", stateLabel(""))
	assert.Equal(t, "[not deployed]", stateLabel(domain.BotStateNotDeployed))
}

func TestRenderOrdersByNameWhenNothingNeedsAttention(t *testing.T) {
	rows := []application.StatusRow{
		{Strategy: "zeta", Status: domain.BotStatus{Status: domain.BotStatePending}},
		{Strategy: "alpha", Status: domain.BotStatus{Status: domain.BotStateRunning, Running: true}},
	}

	output, err := Render(rows, RenderOptions{})

	require.NoError(t, err)
	assert.Less(t, strings.Index(output, "alpha"), strings.Index(output, "zeta"))
	assert.Equal(t, "zeta", rows[0].Strategy)
}
