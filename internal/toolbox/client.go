// Package toolbox talks to the rental database's MCP tool server. It has two
// jobs: loading the server's tools into Genkit for the agent, and probing
// the server for health reporting.
package toolbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/filmdesk/filmdesk/internal/log"
)

const defaultTimeout = 10 * time.Second

// dialFunc opens an MCP session. Injectable so tests can swap the HTTP
// transport for an in-memory one.
type dialFunc func(ctx context.Context) (*mcp.ClientSession, error)

// Client is a lightweight MCP client for the toolbox server. Each probe
// opens a fresh session and closes it, so a restarted toolbox is picked up
// without any reconnect bookkeeping.
type Client struct {
	endpoint string
	logger   log.Logger
	dial     dialFunc
}

// NewClient creates a client for the toolbox MCP endpoint.
func NewClient(endpoint string, timeout time.Duration, logger log.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		endpoint: endpoint,
		logger:   logger,
	}
	c.dial = func(ctx context.Context) (*mcp.ClientSession, error) {
		client := mcp.NewClient(&mcp.Implementation{
			Name:    "filmdesk",
			Version: "1.0.0",
		}, nil)
		transport := &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: &http.Client{Timeout: timeout},
		}
		return client.Connect(ctx, transport, nil)
	}
	return c
}

// Ping verifies the toolbox is reachable and serving tools. Returns the
// tool count on success.
func (c *Client) Ping(ctx context.Context) (int, error) {
	names, err := c.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// ListTools returns the names of all tools the toolbox exposes.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	session, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to toolbox at %s: %w", c.endpoint, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Debug("toolbox session close failed", "error", cerr)
		}
	}()

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list toolbox tools: %w", err)
	}

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names, nil
}
