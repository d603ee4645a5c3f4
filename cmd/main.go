package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/config"
	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/model"
)

var rootCmd = &cobra.Command{
	Use:          "transit",
	Short:        "Tidbyt transit journey planner",
	Long:         "Searches stops and plans journeys on GTFS data",
	SilenceUsage: true,
}

var (
	configPath      string
	staticURL       string
	realtimeURLs    []string
	staticHeaders   []string
	realtimeHeaders []string
	sharedHeaders   []string
	storageBackend  string
	logLevel        string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&staticURL, "static-url", "", "", "GTFS Static URL (file:// for local files)")
	rootCmd.PersistentFlags().StringSliceVarP(&realtimeURLs, "realtime-url", "", []string{}, "GTFS Realtime URL")
	rootCmd.PersistentFlags().StringSliceVarP(
		&staticHeaders,
		"static-header",
		"",
		[]string{},
		"GTFS Static HTTP header",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&realtimeHeaders,
		"realtime-header",
		"",
		[]string{},
		"GTFS Realtime HTTP header",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&sharedHeaders,
		"header",
		"",
		[]string{},
		"GTFS HTTP header (shared between static and realtime)",
	)
	rootCmd.PersistentFlags().StringVarP(&storageBackend, "storage", "", "", "Storage backend (memory, sqlite or postgres)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (debug, info, warn or error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Merges headers from flags on top of those from config.
func mergeHeaders(base map[string]string, flags ...[]string) (map[string]string, error) {
	merged := map[string]string{}
	for k, v := range base {
		merged[k] = v
	}
	for _, f := range flags {
		parsed, err := parseHeaders(f)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			merged[k] = v
		}
	}
	return merged, nil
}

// Config file and environment, with command line flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("static-url") {
		cfg.Static.URL = staticURL
	}
	if flags.Changed("realtime-url") {
		cfg.Realtime.URLs = realtimeURLs
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = storageBackend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	cfg.Static.Headers, err = mergeHeaders(cfg.Static.Headers, sharedHeaders, staticHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid static header: %w", err)
	}
	cfg.Realtime.Headers, err = mergeHeaders(cfg.Realtime.Headers, sharedHeaders, realtimeHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime header: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
}

// Reads file:// URLs from disk, and hands everything else to an
// in memory caching HTTP downloader.
type localDownloader struct {
	remote downloader.Downloader
}

func (d *localDownloader) Get(ctx context.Context, url string, headers map[string]string, options downloader.GetOptions) ([]byte, error) {
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		return os.ReadFile(path)
	}
	return d.remote.Get(ctx, url, headers, options)
}

// Sets up a Manager serving the configured feed. A stored feed is
// used if one is active, otherwise the feed is downloaded.
func loadManager(cmd *cobra.Command) (*transit.Manager, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Static.URL == "" {
		return nil, nil, fmt.Errorf("static URL is required")
	}

	s, err := cfg.OpenStorage()
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	m := cfg.NewManager(s)
	m.Logger = newLogger(cfg)
	m.Downloader = &localDownloader{remote: downloader.NewMemoryDownloader()}

	ctx := cmd.Context()
	err = m.LoadLatest(time.Now())
	if errors.Is(err, model.ErrFeedUnavailable) {
		err = m.RefreshStatic(ctx)
	}
	if err != nil {
		return nil, nil, err
	}

	if len(cfg.Realtime.URLs) > 0 {
		// Static schedule still works without realtime data
		if err := m.RefreshRealtime(ctx); err != nil {
			m.Logger.Warn("continuing without realtime data", "error", err)
		}
	}

	return m, cfg, nil
}
