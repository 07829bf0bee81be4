package questdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Column describes one column of a query result.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is the parsed response of the store's /exec endpoint.
type Result struct {
	Query   string   `json:"query"`
	Columns []Column `json:"columns"`
	Dataset [][]any  `json:"dataset"`
	Count   int      `json:"count"`
	Error   string   `json:"error"`
}

// Gateway is the single entry point to QuestDB's HTTP SQL endpoint.
//
// Exec and BulkExec are safe for concurrent use; Connect and Disconnect
// must not be called concurrently with each other.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	execTimeout time.Duration
	bulkTimeout time.Duration

	mu        sync.RWMutex
	connected bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gateway) { g.httpClient = hc }
}

// WithTimeouts sets the per-request timeouts for Exec and BulkExec.
func WithTimeouts(exec, bulk time.Duration) Option {
	return func(g *Gateway) {
		g.execTimeout = exec
		g.bulkTimeout = bulk
	}
}

// NewGateway creates a gateway for the endpoint at host:port.
func NewGateway(host string, port int, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:     fmt.Sprintf("http://%s:%d", host, port),
		httpClient:  &http.Client{},
		logger:      slog.Default(),
		execTimeout: 30 * time.Second,
		bulkTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Connect probes the endpoint with SELECT 1 and marks the gateway
// connected. Calling Connect on a connected gateway is a no-op.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.RLock()
	already := g.connected
	g.mu.RUnlock()
	if already {
		return nil
	}

	if _, err := g.query(ctx, "SELECT 1", g.execTimeout); err != nil {
		if _, ok := err.(*QueryError); ok {
			return &ConnectionError{Endpoint: g.baseURL, Err: err}
		}
		return err
	}

	g.mu.Lock()
	g.connected = true
	g.mu.Unlock()

	g.logger.Debug("questdb connected", "endpoint", g.baseURL)
	return nil
}

// Disconnect clears the connected flag. It never fails.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	g.connected = false
	g.mu.Unlock()
}

// Connected reports whether Connect has succeeded.
func (g *Gateway) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// Exec renders placeholders into sql and runs it against the store.
// It fails with ErrNotConnected before Connect.
func (g *Gateway) Exec(ctx context.Context, sql string, params ...any) (*Result, error) {
	if !g.Connected() {
		return nil, ErrNotConnected
	}

	rendered, err := Render(sql, params...)
	if err != nil {
		return nil, err
	}

	return g.query(ctx, rendered, g.execTimeout)
}

// BulkExec runs sql without parameter substitution under the larger bulk
// timeout. Used for large multi-VALUES inserts.
func (g *Gateway) BulkExec(ctx context.Context, sql string) (*Result, error) {
	if !g.Connected() {
		return nil, ErrNotConnected
	}
	return g.query(ctx, sql, g.bulkTimeout)
}

// query performs a single GET /exec round trip.
func (g *Gateway) query(ctx context.Context, sql string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := g.baseURL + "/exec?query=" + url.QueryEscape(sql)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Endpoint: g.baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &ConnectionError{Endpoint: g.baseURL, Status: resp.StatusCode}
		}
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if result.Error != "" {
		return nil, &QueryError{Query: sql, Message: result.Error}
	}

	return &result, nil
}

// RunSchema executes every statement of the embedded schema file.
// Statements are split on ';' and trimmed; empty fragments are skipped.
func (g *Gateway) RunSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := g.Exec(ctx, qualifySchema(stmt)); err != nil {
			return fmt.Errorf("run schema: %w", err)
		}
	}
	return nil
}

// productionTables is the fixed list of tables Reset drops.
var productionTables = []string{
	"stock_aggregates",
	"option_contracts",
	"option_contracts_index",
	"option_trades",
	"option_quotes",
	"option_trades_index",
	"sync_state",
}

// Reset drops the production tables and re-runs the schema.
// Intended for test and development use only.
func (g *Gateway) Reset(ctx context.Context) error {
	for _, table := range productionTables {
		if _, err := g.Exec(ctx, "DROP TABLE IF EXISTS "+TableName(table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return g.RunSchema(ctx)
}
