package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/banshee-data/mitosis.report/internal/config"
	"github.com/banshee-data/mitosis.report/internal/monitoring"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
)

type commandContext struct {
	configPath string
	logFormat  string
	logLevel   string
	quiet      bool

	configOnce sync.Once
	config     *config.AnalysisConfig
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.AnalysisConfig, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(strings.TrimSpace(c.configPath))
	})
	return c.config, c.configErr
}

func (c *commandContext) options() (pipeline.Options, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.OptionsFromConfig(cfg), nil
}

// setupLogging routes the analysis packages' diagnostics through slog.
func (c *commandContext) setupLogging(w io.Writer) error {
	if c.quiet {
		monitoring.SetLogger(nil)
		return nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", c.logLevel)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(c.logFormat) {
	case "", "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		return fmt.Errorf("invalid --log-format %q: want text or json", c.logFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	monitoring.SetLogger(monitoring.SlogLogf(logger, slog.LevelInfo, "mitosis"))
	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
