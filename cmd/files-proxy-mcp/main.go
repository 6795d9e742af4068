// Command files-proxy-mcp exposes the Files API proxy as an MCP server
// over stdio, for use by MCP-capable clients and agents.
package main

import (
	"log"

	proxy "github.com/commercekit/files-proxy"
	"github.com/commercekit/files-proxy/mcptool"
)

var version = "dev"

func main() {
	cfg := proxy.LoadConfig()

	rt, err := proxy.NewRuntime(cfg, version)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer rt.Close()

	srv, err := mcptool.New(mcptool.Config{
		Resolver: rt.Resolver,
		Issuer:   rt.Issuer,
		Upstream: rt.Upstream,
		Version:  version,
		Logger:   rt.Logger,
	})
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	rt.Logger.Info("Files MCP server starting", "upstream", cfg.BaseURL, "version", version)
	if err := srv.ServeStdio(); err != nil {
		log.Fatalf("MCP server terminated: %v", err)
	}
}
