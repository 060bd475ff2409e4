package domain

import (
	"encoding/json"
	"slices"
)

type EventType string

const (
	EventStatus                  EventType = "status"
	EventStartup                 EventType = "startup"
	EventEntry                   EventType = "entry"
	EventEntryFill               EventType = "entry_fill"
	EventEntryCancel             EventType = "entry_cancel"
	EventExit                    EventType = "exit"
	EventExitFill                EventType = "exit_fill"
	EventExitCancel              EventType = "exit_cancel"
	EventWarning                 EventType = "warning"
	EventStrategyMsg             EventType = "strategy_msg"
	EventWhitelist               EventType = "whitelist"
	EventAnalyzedDF              EventType = "analyzed_df"
	EventNewCandle               EventType = "new_candle"
	EventProtectionTrigger       EventType = "protection_trigger"
	EventProtectionTriggerGlobal EventType = "protection_trigger_global"
)

// DefaultEventTypes is used when a subscriber does not name any.
var DefaultEventTypes = []EventType{
	EventStatus,
	EventStartup,
	EventEntry,
	EventEntryFill,
	EventExit,
	EventExitFill,
	EventWarning,
	EventStrategyMsg,
}

// TradeEventTypes change the number of open trades.
var TradeEventTypes = []EventType{EventEntry, EventEntryFill, EventExit, EventExitFill}

func (t EventType) AffectsTrades() bool {
	return slices.Contains(TradeEventTypes, t)
}

type BotEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StatusValue extracts data.status from a status event.
func (e BotEvent) StatusValue() (string, bool) {
	if e.Type != EventStatus || len(e.Data) == 0 {
		return "", false
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil || payload.Status == "" {
		return "", false
	}
	return payload.Status, true
}

// SubscribeMessage is the control frame sent to the event endpoint.
type SubscribeMessage struct {
	Type string      `json:"type"`
	Data []EventType `json:"data"`
}

func NewSubscribeMessage(types []EventType) SubscribeMessage {
	return SubscribeMessage{Type: "subscribe", Data: types}
}
