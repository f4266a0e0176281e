// Command elinkd is a small demo daemon around the elink session engine:
// it keeps a sqlite-backed catalog of known printers and exposes a
// dashboard/REST/WebSocket surface for adding printers, connecting to
// them, and issuing print commands. It does not persist session state —
// restarting elinkd means every printer starts disconnected again and
// reconnects on demand.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"elink"
)

func main() {
	var (
		addr   = flag.String("addr", "0.0.0.0:8080", "dashboard/API listen address")
		dbFile = flag.String("db", "elinkd.db", "sqlite catalog file")
	)
	flag.Parse()

	log := logrus.WithField("component", "elinkd")

	store, err := OpenStore(*dbFile)
	if err != nil {
		log.WithError(err).Fatal("failed to open printer catalog")
	}
	defer store.Close()

	registry := elink.NewRegistry()
	registry.Initialize()
	defer registry.Cleanup()

	server := NewServer(registry, store)

	catalog, err := store.All()
	if err != nil {
		log.WithError(err).Fatal("failed to load printer catalog")
	}
	for _, info := range catalog {
		if _, err := registry.CreatePrinter(info); err != nil {
			log.WithError(err).Warnf("failed to create session for catalogued printer %s", info.PrinterID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	if err := server.Run(ctx, *addr); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
