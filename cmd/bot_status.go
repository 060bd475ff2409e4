package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	statusadapter "github.com/bnema/botsmith/internal/adapters/render/status"
	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
)

const eventsErrPollInterval = 200 * time.Millisecond

type statusRowJSON struct {
	Strategy        string          `json:"strategy"`
	Status          domain.BotState `json:"status"`
	Running         bool            `json:"running"`
	Ready           bool            `json:"ready"`
	Phase           string          `json:"phase,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	OpenTrades      int             `json:"open_trades"`
	EventsConnected bool            `json:"events_connected"`
	EventsError     string          `json:"events_error,omitempty"`
}

func newBotStatusCmd(app *app) *cobra.Command {
	var strategies []string
	var watch bool
	var asJSON bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live status of deployed bots",
		Long:  "status polls the deployment backend and each bot's heartbeat. With --watch it keeps refreshing and also follows the bots' live event streams until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := app.auth.GetUser(ctx)
			if err != nil {
				return err
			}
			names, err := resolveStrategies(ctx, app, user, strategies)
			if err != nil {
				return err
			}

			var events *application.ChannelManager
			monitorCfg := application.StatusMonitorConfig{
				UserID:              user.ID,
				Orchestrator:        app.orchestrator,
				BotAPI:              app.botAPI,
				Clock:               app.clock,
				PollInterval:        app.cfg.PollInterval,
				HeartbeatInterval:   app.cfg.HeartbeatInterval,
				ThresholdMultiplier: float64(app.cfg.ThresholdMultiplier),
			}
			if watch {
				events = app.newChannelManager()
				defer events.Close()
				monitorCfg.Events = events
			}

			monitors := make([]*application.StatusMonitor, 0, len(names))
			for _, strategy := range names {
				monitorCfg.Strategy = strategy
				monitors = append(monitors, application.NewStatusMonitor(monitorCfg, app.logger))
			}
			board := application.NewStatusBoard(monitors, app.logger)

			if !watch {
				if _, err := board.Refresh(ctx); err != nil {
					return err
				}
				return writeStatusRows(cmd, app, statusRows(board, nil), asJSON)
			}
			return watchStatus(cmd, app, board, events, duration, asJSON)
		},
	}

	cmd.Flags().StringSliceVar(&strategies, "strategy", nil, "Strategy to show (repeatable; defaults to every configured bot)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep refreshing until interrupted")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop watching after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

// resolveStrategies falls back to the strategies referenced by the user's stored
// bot configurations when none were named.
func resolveStrategies(ctx context.Context, app *app, user domain.User, named []string) ([]string, error) {
	if len(named) > 0 {
		return named, nil
	}

	configurations, err := app.store.ListBotConfigurations(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range configurations {
		if c.Config.Strategy != "" && !slices.Contains(out, c.Config.Strategy) {
			out = append(out, c.Config.Strategy)
		}
	}
	slices.Sort(out)
	return out, nil
}

func statusRows(board *application.StatusBoard, events *application.ChannelManager) []application.StatusRow {
	rows := make([]application.StatusRow, 0, len(board.Monitors()))
	for _, monitor := range board.Monitors() {
		row := application.StatusRow{Strategy: monitor.Strategy(), Status: monitor.Status()}
		if events != nil {
			row.Connected = events.IsConnected(monitor.Strategy())
			row.StreamErr = events.Err(monitor.Strategy())
		}
		rows = append(rows, row)
	}
	return rows
}

func writeStatusRows(cmd *cobra.Command, app *app, rows []application.StatusRow, asJSON bool) error {
	if asJSON {
		out := make([]statusRowJSON, 0, len(rows))
		for _, row := range rows {
			item := statusRowJSON{
				Strategy:        row.Strategy,
				Status:          row.Status.Status,
				Running:         row.Status.Running,
				Ready:           row.Status.Ready,
				Phase:           row.Status.Phase,
				Reason:          row.Status.Reason,
				OpenTrades:      row.Status.OpenTradesCount,
				EventsConnected: row.Connected,
			}
			if row.StreamErr != nil {
				item.EventsError = row.StreamErr.Error()
			}
			out = append(out, item)
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
	}

	rendered, err := app.statusRenderer(rows, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func watchStatus(cmd *cobra.Command, app *app, board *application.StatusBoard, events *application.ChannelManager, duration time.Duration, asJSON bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	changed := make(chan struct{}, 1)
	for _, monitor := range board.Monitors() {
		unsubscribe := monitor.Subscribe(func(domain.BotStatus) {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- board.Watch(ctx)
	}()

	ticker := time.NewTicker(app.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-watchErr:
			return err
		case <-changed:
		case <-ticker.C:
		}
		if err := writeStatusRows(cmd, app, statusRows(board, events), asJSON); err != nil {
			return err
		}
	}
}

func newBotEventsCmd(app *app) *cobra.Command {
	var strategy string
	var types []string
	var count int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream a bot's live events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := app.auth.GetUser(cmd.Context())
			if err != nil {
				return err
			}

			eventTypes := make([]domain.EventType, 0, len(types))
			for _, t := range types {
				eventTypes = append(eventTypes, domain.EventType(t))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := app.newChannelManager()
			defer manager.Close()

			var (
				mu   sync.Mutex
				seen int
				once sync.Once
			)
			done := make(chan struct{})
			enc := json.NewEncoder(cmd.OutOrStdout())
			subscriberID := "cli-" + uuid.NewString()

			ok := manager.Subscribe(ctx, application.SubscribeOptions{
				Strategy:     strategy,
				UserID:       user.ID,
				SubscriberID: subscriberID,
				EventTypes:   eventTypes,
				OnEvent: func(event domain.BotEvent) {
					mu.Lock()
					defer mu.Unlock()
					if count > 0 && seen >= count {
						return
					}
					if err := enc.Encode(event); err != nil {
						app.logger.Warn("write event", zap.Error(err))
						return
					}
					seen++
					if count > 0 && seen >= count {
						once.Do(func() { close(done) })
					}
				},
			})
			if !ok {
				return fmt.Errorf("subscribe to events of %s", strategy)
			}
			defer manager.Unsubscribe(strategy, subscriberID)

			ticker := time.NewTicker(eventsErrPollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-done:
					return nil
				case <-ticker.C:
					if err := manager.Err(strategy); errors.Is(err, domain.ErrReconnectExhausted) {
						return fmt.Errorf("event stream of %s: %w", strategy, err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Event type to show (repeatable; defaults to every event)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many events (0 streams until interrupted)")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}
