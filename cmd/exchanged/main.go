package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/custodia/exchange-middleware/pkg/config"
	"github.com/custodia/exchange-middleware/pkg/exchange"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := exchange.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Exchange server exited with error: %v\n", err)
		os.Exit(1)
	}
}
