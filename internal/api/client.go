// Package api is a client for the battle server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pefman/w40k-combat/internal/models"
)

// DefaultCacheTTL is how long the unit list is reused.
const DefaultCacheTTL = 5 * time.Minute

// Error is a non-2xx answer from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Config holds API configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration // per request; 0 means 30s
	CacheTTL time.Duration // unit list cache; 0 means DefaultCacheTTL
}

type Client struct {
	config Config
	http   *http.Client

	// Simple cache for the unit list to reduce redundant API calls
	cacheMu   sync.RWMutex
	units     []models.UnitEntry
	unitsTime time.Time
}

func NewClient(baseURL string) *Client {
	return New(Config{BaseURL: baseURL})
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Client{config: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + path
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &Error{Status: resp.StatusCode, Message: e.Message}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Units lists the server's catalog, cached for Config.CacheTTL.
func (c *Client) Units(ctx context.Context) ([]models.UnitEntry, error) {
	c.cacheMu.RLock()
	if time.Since(c.unitsTime) < c.config.CacheTTL && len(c.units) > 0 {
		result := make([]models.UnitEntry, len(c.units))
		copy(result, c.units)
		c.cacheMu.RUnlock()
		return result, nil
	}
	c.cacheMu.RUnlock()

	var res []models.UnitEntry
	if err := c.do(ctx, http.MethodGet, "/api/units", nil, &res); err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.units = make([]models.UnitEntry, len(res))
	copy(c.units, res)
	c.unitsTime = time.Now()
	c.cacheMu.Unlock()
	return res, nil
}

// Unit fetches one unit by id.
func (c *Client) Unit(ctx context.Context, id string) (models.UnitEntry, error) {
	var out models.UnitEntry
	err := c.do(ctx, http.MethodGet, "/api/units/"+id, nil, &out)
	return out, err
}

// Battle asks the server to fight one battle.
func (c *Client) Battle(ctx context.Context, req models.BattleRequest) (models.BattleResponse, error) {
	var out models.BattleResponse
	err := c.do(ctx, http.MethodPost, "/api/battles", req, &out)
	return out, err
}

// Batch asks the server for a batch summary.
func (c *Client) Batch(ctx context.Context, req models.BatchRequest) (models.BatchResponse, error) {
	var out models.BatchResponse
	err := c.do(ctx, http.MethodPost, "/api/batches", req, &out)
	return out, err
}
