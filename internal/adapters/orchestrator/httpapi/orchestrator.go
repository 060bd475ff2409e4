package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/botsmith/internal/domain"
	"github.com/bnema/botsmith/internal/ports"
)

// Orchestrator is the client for the deployment backend.
type Orchestrator struct {
	client
}

var _ ports.Orchestrator = (*Orchestrator)(nil)

func NewOrchestrator(baseURL string, httpClient *http.Client, requestTimeout time.Duration) *Orchestrator {
	return &Orchestrator{client{baseURL: baseURL, httpClient: httpClient, requestTimeout: requestTimeout}}
}

func (o *Orchestrator) PodStatus(ctx context.Context, botName, userID string) (domain.PodStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.PodStatus{}, err
	}

	ctx, cancel := o.requestContext(ctx)
	defer cancel()

	req, err := o.newRequest(ctx, http.MethodGet, "/podstatus", url.Values{"botName": {botName}, "userId": {userID}}, nil)
	if err != nil {
		return domain.PodStatus{}, err
	}

	resp, err := o.do("get pod status", req)
	if err != nil {
		return domain.PodStatus{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var status domain.PodStatus
	if err := decodeJSON(resp.Body, &status); err != nil {
		return domain.PodStatus{}, fmt.Errorf("decode pod status: %w", err)
	}
	return status, nil
}

// PodLogs accepts either {"logs": "..."} or a plain-text body and drops blank lines.
func (o *Orchestrator) PodLogs(ctx context.Context, botName, userID string, lines int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := o.requestContext(ctx)
	defer cancel()

	query := url.Values{"botName": {botName}, "userId": {userID}, "lines": {strconv.Itoa(lines)}}
	req, err := o.newRequest(ctx, http.MethodGet, "/podlogs", query, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.do("get pod logs", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read pod logs: %w", err)
	}

	raw := string(data)
	var payload struct {
		Logs *string `json:"logs"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Logs != nil {
		raw = *payload.Logs
	}

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.TrimRight(line, "\r"))
	}
	return out, nil
}

func (o *Orchestrator) Deploy(ctx context.Context, deploy ports.DeployRequest) (ports.DeployResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.DeployResult{}, err
	}
	if deploy.Email == "" || deploy.Strategy == "" {
		return ports.DeployResult{}, errors.New("deploy requires email and strategy")
	}

	body, err := json.Marshal(deploy.Config)
	if err != nil {
		return ports.DeployResult{}, fmt.Errorf("encode bot config: %w", err)
	}

	ctx, cancel := o.requestContext(ctx)
	defer cancel()

	path := "/user/" + url.PathEscape(deploy.Email) + "/" + url.PathEscape(deploy.Strategy)
	var query url.Values
	if deploy.BotID != "" {
		query = url.Values{"bot_id": {deploy.BotID}}
	}
	req, err := o.newRequest(ctx, http.MethodPost, path, query, bytes.NewReader(body))
	if err != nil {
		return ports.DeployResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if deploy.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+deploy.AccessToken)
	}

	resp, err := o.do("deploy bot", req)
	if err != nil {
		return ports.DeployResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Result string `json:"result"`
	}
	if err := decodeJSON(resp.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		return ports.DeployResult{}, fmt.Errorf("decode deploy response: %w", err)
	}
	return ports.DeployResult{Result: payload.Result}, nil
}
