package toolbox

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	genkitmcp "github.com/firebase/genkit/go/plugins/mcp"

	"github.com/filmdesk/filmdesk/internal/log"
)

// LoadTools connects Genkit to the toolbox MCP server and registers every
// tool it exposes. The returned tools are ready to pass into prompt
// execution. Fails when the server is unreachable or exposes no tools,
// since the agent is useless without its database tools.
func LoadTools(ctx context.Context, g *genkit.Genkit, endpoint string, timeout time.Duration, logger log.Logger) ([]ai.Tool, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	host, err := genkitmcp.NewMCPHost(g, genkitmcp.MCPHostOptions{
		Name:    "filmdesk",
		Version: "1.0.0",
		MCPServers: []genkitmcp.MCPServerConfig{
			{
				Name: "toolbox",
				Config: genkitmcp.MCPClientOptions{
					Name: "toolbox",
					StreamableHTTP: &genkitmcp.StreamableHTTPConfig{
						BaseURL: endpoint,
						Timeout: timeout,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create MCP host for toolbox at %s: %w", endpoint, err)
	}

	tools, err := host.GetActiveTools(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("load toolbox tools: %w", err)
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("toolbox at %s exposes no tools", endpoint)
	}

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	logger.Info("toolbox tools loaded", "count", len(tools), "tools", names)

	return tools, nil
}
