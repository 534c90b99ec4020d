// Command electric-engine is a stand-in MDI engine. It connects to the
// driver named by -mdi and answers its commands with deterministic data.
//
// Usage: electric-engine -mdi "-role ENGINE -name NO_EWALD -method TCP -port 8021"
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/seantiz/electric/internal/config"
	"github.com/seantiz/electric/internal/stub"
)

func main() {
	cfg, err := config.LoadEngine(os.Args[1:])
	if err != nil {
		log.Fatalf("electric-engine: %v", err)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := stub.New(stub.Model{
		Name:   cfg.MDI.Name,
		NAtoms: cfg.NAtoms,
		NPoles: cfg.NPoles,
	}, logger)

	if err := stub.Run(ctx, cfg.MDI, e); err != nil {
		log.Fatalf("electric-engine: %v", err)
	}
	logger.Info("electric-engine: exited", "commands", len(e.Transcript()))
}
