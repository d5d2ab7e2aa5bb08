// Command faultline runs the transparent TCP fault-injection proxy.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"faultline/cli"
	"faultline/config"
	"faultline/statusapi"
	"faultline/supervisor"
)

// shutdownGrace bounds how long in-flight connections get to finish
// on their own after a shutdown signal before the status server and
// process exit anyway.
const shutdownGrace = 5 * time.Second

func main() {
	root := cli.NewRootCommand(runServer)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runServer starts the proxy and its status surface for cfg and
// blocks until SIGINT or SIGTERM.
func runServer(cfg *config.Config) error {
	registry := statusapi.NewRegistry()
	sup := supervisor.New(cfg, registry)

	statusSrv := statusapi.NewServer(registry, cfg)
	httpSrv := &http.Server{
		Addr:    statusAddr(cfg),
		Handler: statusSrv.Handler(),
	}

	go func() {
		log.Printf("faultline: status surface listening on %s (run id %s)", httpSrv.Addr, statusSrv.RunID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("faultline: status surface error: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	serveErrc := make(chan error, 1)
	go func() { serveErrc <- sup.Serve(stop) }()

	select {
	case sig := <-sigc:
		log.Printf("faultline: received %s, shutting down", sig)
		close(stop)
	case err := <-serveErrc:
		shutdownStatus(httpSrv)
		return err
	}

	select {
	case err := <-serveErrc:
		shutdownStatus(httpSrv)
		return err
	case <-time.After(shutdownGrace):
		log.Printf("faultline: shutdown grace period elapsed, exiting with connections still in flight")
		shutdownStatus(httpSrv)
		return nil
	}
}

func shutdownStatus(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// statusAddr derives the status surface's bind address from the
// proxy's own listen IP, one port above the proxy's own port.
func statusAddr(cfg *config.Config) string {
	return cfg.Listen.IP + ":" + strconv.Itoa(int(cfg.Listen.Port)+1)
}
