package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yixiongchen/nat/internal/config"
	"github.com/yixiongchen/nat/internal/datapath"
	"github.com/yixiongchen/nat/internal/link"
)

var (
	ifacesFile  = flag.String("interfaces-file", "interfaces.json", "path to the interface table config file")
	routesFile  = flag.String("routes-file", "routes.json", "path to the static routing table config file")
	natFile     = flag.String("nat-file", "", "path to the nat parameters config file (omit to disable nat)")
	verbose     = flag.Bool("v", false, "enable verbose (debug) logging")
	metricsAddr = flag.String("metrics-addr", "localhost:9090", "address to listen on for prometheus metrics")
)

func main() {
	flag.Parse()

	opts := &slog.HandlerOptions{}
	if *verbose {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	cfg, err := config.Load(*ifacesFile, *routesFile, *natFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ifaceNames []string
	for _, ifc := range cfg.Interfaces.All() {
		ifaceNames = append(ifaceNames, ifc.Name)
	}
	pcapLink, err := link.Open(logger, ifaceNames)
	if err != nil {
		logger.Error("failed to open capture handles", "error", err)
		os.Exit(1)
	}
	defer pcapLink.Close()

	handler, err := datapath.NewHandler(datapath.Config{
		Logger:                logger,
		Interfaces:            cfg.Interfaces,
		Routes:                cfg.Routes,
		Link:                  pcapLink,
		ARPCacheSize:          cfg.ARPCacheSize,
		ARPEntryTimeout:       cfg.ARPEntryTimeout,
		NATEnabled:            cfg.NATEnabled,
		InternalIface:         cfg.InternalIface,
		ExternalIface:         cfg.ExternalIface,
		ExternalIP:            cfg.ExternalIP,
		ICMPQueryTimeout:      cfg.ICMPQueryTimeout,
		TCPEstablishedTimeout: cfg.TCPEstablishedTimeout,
		TCPTransitoryTimeout:  cfg.TCPTransitoryTimeout,
	})
	if err != nil {
		logger.Error("failed to construct datapath handler", "error", err)
		os.Exit(1)
	}
	defer handler.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(handler.Collectors()...)
	registry.MustRegister(handler.ARPCache().Collectors()...)
	if nt := handler.NATTable(); nt != nil {
		registry.MustRegister(nt.Collectors()...)
	}

	go func() {
		listener, err := net.Listen("tcp", *metricsAddr)
		if err != nil {
			logger.Error("failed to start prometheus metrics listener", "error", err)
			return
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		logger.Info("prometheus metrics server started", "address", listener.Addr().String())
		if err := http.Serve(listener, mux); err != nil {
			logger.Warn("prometheus metrics server stopped", "error", err)
		}
	}()

	logger.Info("router started", "interfaces", ifaceNames, "nat_enabled", cfg.NATEnabled)
	pcapLink.Run(ctx, handler.HandleFrame)
	logger.Info("router shutting down")
}
