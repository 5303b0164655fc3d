// dhcp4c is a reference DHCPv4 client dispatcher built on internal/client's
// Connection: it owns the retransmission backoff, lease bookkeeping, and
// CLI/config/metrics plumbing that the core transport and message-factory
// layer deliberately knows nothing about.
package main

import (
	"context"
	"flag"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athena-dhcpd/dhcp4c/internal/config"
	"github.com/athena-dhcpd/dhcp4c/internal/logging"
)

func main() {
	configPath := flag.String("config", "/etc/dhcp4c/dhcp4c.toml", "path to configuration file")
	requestFlag := flag.String("request", "", "attempt INIT-REBOOT for this previously leased IP instead of a fresh DHCPDISCOVER")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, os.Stdout)
	logger.Info("dhcp4c starting", "config", *configPath, "interface", cfg.Interface)

	if cfg.Metrics.Enabled {
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := nethttp.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	d, err := buildDispatcher(cfg, *requestFlag, logger)
	if err != nil {
		logger.Error("FATAL: failed to initialize dispatcher", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		d.release()
		cancel()
	}()

	if err := d.start(); err != nil {
		logger.Error("FATAL: failed to start acquisition", "error", err)
		os.Exit(1)
	}

	if err := d.run(ctx); err != nil {
		logger.Error("dispatcher loop exited with error", "error", err)
		d.conn.Close()
		os.Exit(1)
	}

	d.conn.Close()
	d.notifier.Close()
	if d.prober != nil {
		d.prober.Close()
	}
	logger.Info("dhcp4c stopped")
}

