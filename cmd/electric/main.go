// Command electric is the MDI driver. It listens for engines on the
// endpoint given by -mdi, runs the selected scenario against them and
// prints the results on stdout.
//
// Usage: electric -mdi "-role DRIVER -name driver -method TCP -port 8021"
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/electric/internal/api"
	"github.com/seantiz/electric/internal/config"
	"github.com/seantiz/electric/internal/driver"
	"github.com/seantiz/electric/internal/mdi"
	"github.com/seantiz/electric/internal/scenario"
	"github.com/seantiz/electric/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("electric: %v", err)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	sc, err := scenario.Builtin(cfg.Scenario, cfg.Params())
	if err != nil {
		log.Fatalf("electric: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr, err := mdi.Listen(cfg.MDI)
	if err != nil {
		log.Fatalf("electric: %v", err)
	}
	defer tr.Close()

	logger.Info("electric: starting",
		"scenario", sc.Name,
		"method", cfg.MDI.Method,
		"address", tr.Addr().String(),
		"journal_path", cfg.JournalPath,
		"listen_addr", cfg.ListenAddr,
	)

	var opts []driver.Option
	var db *store.SQLiteStore
	if cfg.JournalPath != "" {
		db, err = store.NewSQLiteStore(cfg.JournalPath)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer db.Close()
		opts = append(opts, driver.WithJournal(db))
	}

	var srv *api.Server
	if cfg.ListenAddr != "" {
		if db == nil {
			log.Fatalf("electric: status server requires ELECTRIC_JOURNAL_PATH")
		}
		broker := driver.NewEventBroker()
		opts = append(opts, driver.WithBroker(broker))
		srv = api.NewServer(cfg.ListenAddr, db, broker, logger)
	}

	d := driver.New(sc, logger, opts...)

	g, gctx := errgroup.WithContext(ctx)
	apiCtx, stopAPI := context.WithCancel(gctx)
	defer stopAPI()

	g.Go(func() error {
		defer stopAPI()
		return d.Run(gctx, driver.Accepter(tr))
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Run(apiCtx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("electric: %v", err)
	}
}
