package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mountly/mountly-backend/internal/areasync"
	"github.com/mountly/mountly-backend/internal/config"
	"github.com/mountly/mountly-backend/internal/logger"
	"github.com/mountly/mountly-backend/internal/zcta"
)

var (
	datasetPath string
	apiURL      string
	sessionID   string
	logLevel    string
	matchMode   string
	minOverlap  float64
	syncTimeout time.Duration
	loadTimeout time.Duration
	throttle    time.Duration
	quiet       bool

	cfg config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "areactl",
	Short: "Compute and sync worker service areas",
	Long: `areactl drives the service-area sync controller from the command line.

It loads the ZCTA boundary dataset locally, assigns postal codes to a drawn
polygon and pushes the result to the service-area API.

Polygons are read from a file or stdin, either as a JSON array of
{"lat":..,"lng":..} vertices or as a GeoJSON Polygon or Feature.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := checkMatchFlags(); err != nil {
			return err
		}
		l, err := logger.NewLogger(logLevel, "console", "areactl")
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	c, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		c = config.Defaults()
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	f.StringVar(&datasetPath, "dataset", cfg.ZCTADataset, "ZCTA GeoJSON dataset, URL or path")
	f.StringVar(&apiURL, "api", envOr("MOUNTLY_API", "http://localhost:"+cfg.Port+"/api"), "service-area API base URL")
	f.StringVar(&sessionID, "session", os.Getenv("MOUNTLY_SESSION"), "session_id cookie for the API")
	f.StringVar(&logLevel, "log-level", "warn", "log level")
	f.StringVar(&matchMode, "mode", cfg.MatchMode, "zip matching: centroid or intersection")
	f.Float64Var(&minOverlap, "min-overlap", cfg.MinOverlapRatio, "minimum overlap ratio in intersection mode")
	f.DurationVar(&syncTimeout, "sync-timeout", cfg.SyncTimeout, "timeout of one API call")
	f.DurationVar(&loadTimeout, "load-timeout", cfg.ZCTADownloadTimeout, "timeout of the dataset download")
	f.DurationVar(&throttle, "throttle", cfg.SyncThrottle, "quiet period before a watched edit is synced")
	f.BoolVarP(&quiet, "quiet", "q", false, "hide the load progress bar")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func checkMatchFlags() error {
	if err := config.ValidateMatch(matchMode, minOverlap); err != nil {
		return fmt.Errorf("--mode %q / --min-overlap %v: %w", matchMode, minOverlap, err)
	}
	return nil
}

func matchOptions() zcta.MatchOptions {
	return zcta.MatchOptions{Mode: zcta.MatchMode(matchMode), MinOverlapRatio: minOverlap}
}

// loadIndex builds the local index, rendering load progress.
func loadIndex(ctx context.Context) (*zcta.Index, error) {
	ix := zcta.New(zcta.NewFetcher(datasetPath, loadTimeout), zcta.WithLogger(log), zcta.WithTimeout(loadTimeout))
	if !quiet {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("loading zcta"),
			progressbar.OptionSetTheme(progressbar.Theme{Saucer: "#", SaucerPadding: " ", BarStart: "|", BarEnd: "|"}),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
		unsubscribe := ix.Subscribe(func(p zcta.Progress) {
			bar.Describe(string(p.Phase))
			_ = bar.Set(p.Percent)
		})
		defer unsubscribe()
		defer bar.Finish()
	}
	if err := ix.Load(ctx, false); err != nil {
		return nil, err
	}
	return ix, nil
}

func newBackend() *areasync.HTTPBackend {
	return areasync.NewHTTPBackend(apiURL, sessionID, syncTimeout)
}

func newController(ix areasync.ZipIndex, opts areasync.Options) *areasync.Controller {
	opts.ThrottleDelay = throttle
	opts.MatchOptions = matchOptions()
	opts.Logger = log
	return areasync.New(ix, newBackend(), opts)
}
