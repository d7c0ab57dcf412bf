package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"npsh-guard/internal/curve"
	"npsh-guard/internal/domain"
	"npsh-guard/internal/service"
)

// apiClient talks to the running daemon's local API. CLI subcommands other
// than `run` are clients; they never open the fieldbus themselves.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func (a *App) newAPIClient() *apiClient {
	listen := a.Config.HTTP.Listen
	base := listen
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `npsh-guard run` active?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) status(ctx context.Context) (service.Snapshot, error) {
	var snap service.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap)
	return snap, err
}

func (c *apiClient) history(ctx context.Context) ([]domain.Sample, error) {
	var payload struct {
		Samples []domain.Sample `json:"samples"`
	}
	err := c.do(ctx, http.MethodGet, "/api/history", nil, &payload)
	return payload.Samples, err
}

func (c *apiClient) historyCSV(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/history.csv", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *apiClient) activeCurve(ctx context.Context) (curve.Curve, error) {
	var cv curve.Curve
	err := c.do(ctx, http.MethodGet, "/api/curve", nil, &cv)
	return cv, err
}

func (c *apiClient) uploadCurve(ctx context.Context, cv curve.Curve) error {
	body, err := json.Marshal(cv)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/api/curve", bytes.NewReader(body), nil)
}

func (c *apiClient) startPump(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/pump/start", nil, nil)
}

func (c *apiClient) stopPump(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/pump/stop", nil, nil)
}

func (c *apiClient) cancelCountdown(ctx context.Context) (bool, error) {
	var payload struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodPost, "/api/countdown/cancel", nil, &payload)
	return payload.Cancelled, err
}
