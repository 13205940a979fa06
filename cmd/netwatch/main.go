package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/netwatch/internal/api"
	"github.com/dgnsrekt/netwatch/internal/browser"
	"github.com/dgnsrekt/netwatch/internal/capture"
	"github.com/dgnsrekt/netwatch/internal/cdp"
	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/controller"
	"github.com/dgnsrekt/netwatch/internal/netutil"
	"github.com/dgnsrekt/netwatch/internal/relay"
	"github.com/dgnsrekt/netwatch/internal/session"
	"github.com/dgnsrekt/netwatch/internal/storage"
	"github.com/dgnsrekt/netwatch/internal/telemetry"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	limits := config.CurrentLimits()
	slog.Info("netwatch config loaded",
		"cdp_url", cfg.GetCDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"tab_url_filter", cfg.TabURLFilter,
		"max_request_body_bytes", limits.MaxRequestBodyBytes,
		"max_response_body_bytes", limits.MaxResponseBodyBytes,
		"archive_dir", cfg.ArchiveDir,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
	)

	if cfg.TraceStdout {
		shutdown, err := telemetry.InitTracer("netwatch", os.Stdout, slog.Default())
		if err != nil {
			slog.Error("failed to initialize tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			Binary:     cfg.BrowserBinary,
			Headless:   cfg.BrowserHeadless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	broker := relay.NewBroker()
	observers := []capture.Observer{relay.NewPublisher(broker, cfg.StreamOmitBodies)}
	if cfg.ArchiveDir != "" {
		archive := storage.NewArchive(cfg.ArchiveDir, cfg.ArchiveBuffer, cfg.ArchiveMaxFileMB, cfg.ArchiveResources)
		defer func() {
			if err := archive.Close(); err != nil {
				slog.Warn("archive close failed", "error", err)
			}
		}()
		observers = append(observers, archive)
	}

	manager := session.NewManager(session.Options{
		BodyTimeout: cfg.BodyTimeout,
		StaleAfter:  cfg.StaleAfter,
		Observers:   observers,
	})
	defer manager.Close()

	// A failed connection leaves the query API up over an empty manager.
	var browserCtl controller.Browser
	cdpClient := cdp.NewClient(cfg, manager, cdp.NewTabRegistry())
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.GetCDPURL(), "error", err)
		slog.Info("start Chromium with --remote-debugging-port or set NETWATCH_LAUNCH_BROWSER=true")
	} else {
		browserCtl = cdpClient
		defer func() { _ = cdpClient.Close() }()
	}

	svc := controller.NewService(manager, browserCtl)
	h := api.NewServer(svc, broker)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	addr := ln.Addr().String()
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("netwatch listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	// Stream handlers only return once the broker closes their channels.
	broker.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
