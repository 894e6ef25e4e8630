// Councild: LLM council MCP server.
//
// Exposes a panel of models that answer queries through a token-bid
// auction and settle payment by negotiation. Integrates with any MCP
// client over the stdio transport.
//
// Usage:
//
//	councild serve [config.yaml]   # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pedroramos256/bundlecarte/internal/config"
	councilserver "github.com/pedroramos256/bundlecarte/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		configPath := ""
		if len(os.Args) > 2 {
			configPath = os.Args[2]
		}
		if err := run(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("councild v%s\n", councilserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, cleanup, err := councilserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `councild v%s — LLM council MCP server

Usage:
  councild serve [config.yaml]   Start the MCP server (stdio transport)

Environment:
  OPENROUTER_API_KEY   API key used for all model calls (required)

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "council": {
        "command": "councild",
        "args": ["serve"],
        "env": {"OPENROUTER_API_KEY": "sk-or-..."}
      }
    }
  }
`, councilserver.Version)
}
