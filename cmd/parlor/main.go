// Command parlor runs the multi-user Telnet conferencing server:
// parse flags, initialize the tracer, construct the server, run it,
// and exit 1 on any fatal startup error.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parlor/config"
	"parlor/logsink"
	"parlor/server"
	"parlor/session"
	"parlor/store"
	"parlor/trace"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	trace.Init(cfg.Trace, cfg.TraceFilters(), os.Stderr)
	if cfg.Trace {
		log.Printf("Tracing enabled (filters: %v)", cfg.TraceFilters())
	}

	logs, err := logsink.Open("logs", time.Now())
	if err != nil {
		log.Fatalf("parlor: %v", err)
	}
	defer logs.Close()

	st, err := store.Open(cfg.Passwd)
	if err != nil {
		log.Fatalf("parlor: credential store: %v", err)
	}
	defer st.Close()

	reg := session.NewRegistry()

	ln, err := server.Open(cfg.Port, reg, st, logs, server.Config{
		Width:         cfg.Width,
		DetachTimeout: cfg.DetachTimeout,
	})
	if err != nil {
		log.Fatalf("parlor: %v", err)
	}

	log.Printf("Parlor listening on port %d", cfg.Port)
	if cfg.Debug {
		log.Printf("Debug mode: staying attached to the terminal.")
	}

	handleSignals(reg)

	if err := ln.Serve(); err != nil {
		log.Fatalf("parlor: %v", err)
	}
}

// handleSignals ignores SIGHUP/SIGINT/SIGPIPE; SIGQUIT/SIGTERM
// schedule a 30-second shutdown exactly as "!down 30" would.
func handleSignals(reg *session.Registry) {
	signal.Ignore(syscall.SIGHUP, syscall.SIGINT, syscall.SIGPIPE)

	shutdownSignals := make(chan os.Signal, 1)
	signal.Notify(shutdownSignals, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		for range shutdownSignals {
			if reg.ShutdownRequest != nil {
				reg.ShutdownRequest(30, false, false)
			}
		}
	}()
}
