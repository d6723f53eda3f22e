package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"cryptodash/internal/config"
	"cryptodash/internal/dashboard"
	"cryptodash/internal/lending"
	"cryptodash/internal/util"
	"cryptodash/pkg/cryptodash"
)

func main() {
	configPath := flag.String("config", os.Getenv("CRYPTODASH_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// A full-screen UI owns stdout, so logs go to a dated file.
	logDir := cfg.Client.LogDir
	if logDir == "" {
		logDir = os.TempDir()
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("cryptodash-%s.log", time.Now().Format("2006-01-02")))
	logger, err := util.NewLogger(cfg.Logging.Level, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client := cryptodash.NewClient(cfg.Client.APIURL, cfg.Client.RequestTimeout)
	logger.Info("starting dashboard", zap.String("api", client.BaseURL()))

	banner := lending.NewBannerSink(10)
	sink := lending.NewMultiSink(lending.NewExecSink(cfg.Client.NotifyCommand), banner)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	p := tea.NewProgram(
		dashboard.New(dashboard.Deps{
			API:       client,
			Config:    cfg.Client,
			Sink:      sink,
			Banner:    banner,
			Logger:    logger,
			ExportDir: cwd,
		}),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
