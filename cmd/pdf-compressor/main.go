package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pdf-compressor-go/internal/backend"
	"pdf-compressor-go/internal/config"
	"pdf-compressor-go/internal/engine"
	"pdf-compressor-go/internal/logger"
	"pdf-compressor-go/internal/metadata"
	"pdf-compressor-go/internal/preset"
	"pdf-compressor-go/internal/preview"
	"pdf-compressor-go/internal/scan"
	"pdf-compressor-go/internal/statistics"
	"pdf-compressor-go/internal/validator"
	"pdf-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputPath   string
	quality      string
	maxDPI       int
	imageQuality int
	noGS         bool
	noQPDF       bool
	noFallback   bool
	workers      int
	thumbnails   bool
	verbose      bool
	quiet        bool
	port         int
)

// rootCmd compresses the given PDF files or directories.
var rootCmd = &cobra.Command{
	Use:   "pdf-compressor [files or directories]",
	Short: "Shrink PDF files without making them unusable",
	Long: `pdf-compressor reduces the on-disk size of PDF documents while keeping
them visually usable. It tries the strongest available backend first
(Ghostscript, then qpdf, then a built-in lossless optimizer) and keeps the
first result that is both structurally valid and smaller than the input.

Features:
- Quality tiers (high/medium/low) with per-field DPI and JPEG overrides
- Automatic backend detection; missing tools are skipped, never fatal
- Concurrent batch processing with per-file isolation
- Optional first-page JPEG thumbnails of compressed output
- Structured logging and run statistics`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args)
	},
}

// probeCmd reports which compression backends are usable on this host.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Detect available compression backends",
	Long: `Probes for Ghostscript and qpdf on this host and prints each backend's
availability, version and priority. The built-in optimizer is always
available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe()
	},
}

// inspectCmd prints metadata for a single PDF.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show metadata for a PDF file",
	Long: `Reads document metadata (title, author, producer, page count) using
exiftool when installed, falling back to the built-in reader otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a web server exposing the compression engine. The interface lets
you pick files, choose a quality tier, watch per-file progress over a
websocket and view run statistics.

Access the interface at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (single input) or directory (default: alongside input)")
	rootCmd.Flags().StringVarP(&quality, "quality", "q", "", "quality tier: high, medium or low")
	rootCmd.Flags().IntVar(&maxDPI, "max-dpi", 0, "cap image resolution at this DPI (overrides tier default)")
	rootCmd.Flags().IntVar(&imageQuality, "image-quality", 0, "JPEG quality 1-100 for recoded images (overrides tier default)")
	rootCmd.Flags().BoolVar(&noGS, "no-ghostscript", false, "skip the Ghostscript backend")
	rootCmd.Flags().BoolVar(&noQPDF, "no-qpdf", false, "skip the qpdf backend")
	rootCmd.Flags().BoolVar(&noFallback, "no-fallback", false, "skip the built-in fallback optimizer")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent files (default: CPU count)")
	rootCmd.Flags().BoolVar(&thumbnails, "thumbnails", false, "generate a first-page JPEG thumbnail for each compressed file")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.pdf-compressor")
		viper.AddConfigPath("/etc/pdf-compressor")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !quiet {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// buildEngine assembles the prober, validator and engine from configuration.
func buildEngine(cfg *config.Config, log *logrus.Logger) *engine.Engine {
	adapters := []backend.Adapter{
		backend.NewGhostscript(cfg.Backends.GhostscriptPath, cfg.Backends.AttemptTimeout, log),
		backend.NewQPDF(cfg.Backends.QPDFPath, cfg.Backends.AttemptTimeout, log),
		backend.NewBuiltin(cfg.Backends.AttemptTimeout, log),
	}
	prober := backend.NewProber(adapters, cfg.Backends.ProbeTimeout, log)
	return engine.New(prober, validator.New(log), cfg.Backends.ScratchDir, log)
}

// runCompress executes the main compression logic.
func runCompress(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	eng := buildEngine(cfg, log)

	files, err := scan.CollectPDFs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no PDF files found under the given paths")
	}

	requests, err := buildRequests(cfg, files)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	descs := eng.ProbeBackends(ctx)
	if !quiet {
		for _, d := range descs {
			if d.Available {
				fmt.Fprintf(os.Stderr, "backend %s available (%s)\n", d.Name, d.Version)
			} else {
				fmt.Fprintf(os.Stderr, "backend %s not available\n", d.Name)
			}
		}
	}

	var thumbGen *preview.Generator
	if thumbnails || cfg.Thumbnails.Enabled {
		if gsPath := ghostscriptPath(descs); gsPath != "" {
			thumbGen = preview.NewGenerator(gsPath, cfg.Thumbnails.MaxWidth, cfg.Thumbnails.Quality, cfg.Backends.AttemptTimeout, log)
		} else {
			log.Warn("thumbnails requested but ghostscript is not available")
		}
	}

	stats := statistics.NewStatistics()
	for range requests {
		stats.IncrementFilesFound()
	}

	numWorkers := cfg.Performance.WorkerThreads
	if workers > 0 {
		numWorkers = workers
	}

	result := eng.CompressBatch(ctx, requests, numWorkers, func(outcome engine.Outcome) {
		stats.RecordOutcomeCounts(string(outcome.Status))
		stats.AddBytes(outcome.OriginalSize, outcome.FinalSize)
		if outcome.Winning != nil {
			stats.RecordBackendWin(outcome.Winning.Backend)
		}
		if outcome.Status != engine.StatusSuccess && outcome.Status != engine.StatusNoImprovement {
			stats.AddError(outcome.InputPath, "compress", outcome.Detail)
		}

		// Already-optimal files still land in the output location, so a
		// batch into --output yields one file per input.
		if outcome.Status == engine.StatusNoImprovement {
			if err := engine.CopyOriginal(outcome.InputPath, outcome.OutputPath); err != nil {
				log.Warnf("keeping original for %s failed: %v", outcome.InputPath, err)
			}
		}

		if !quiet && cfg.Performance.ShowProgress {
			printOutcome(outcome)
		}

		if thumbGen != nil && outcome.Status == engine.StatusSuccess {
			thumbPath := thumbnailPath(cfg, outcome.OutputPath)
			if err := thumbGen.Generate(ctx, outcome.OutputPath, thumbPath); err != nil {
				log.Warnf("thumbnail for %s failed: %v", outcome.OutputPath, err)
			}
		}
	})

	stats.Finalize()

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		if result.Failed > 0 || result.Invalid > 0 {
			fmt.Println("\n" + stats.GetErrorSummary())
		}
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d file(s) could not be compressed", result.Failed)
	}
	return nil
}

// buildRequests translates collected files plus flags/config into engine
// requests.
func buildRequests(cfg *config.Config, files []string) ([]engine.Request, error) {
	tier := cfg.Tier()
	if quality != "" {
		var err error
		tier, err = preset.ParseTier(quality)
		if err != nil {
			return nil, err
		}
	}

	overrides := cfg.Overrides()
	if maxDPI > 0 {
		dpi := maxDPI
		overrides.MaxDPI = &dpi
	}
	if imageQuality > 0 {
		q := imageQuality
		overrides.ImageQuality = &q
	}

	// A single input with an explicit .pdf output compresses to that exact
	// path; otherwise --output names a directory.
	explicitFile := len(files) == 1 && outputPath != "" && strings.EqualFold(filepath.Ext(outputPath), ".pdf")
	outputDir := ""
	if !explicitFile {
		outputDir = outputPath
	}

	requests := make([]engine.Request, 0, len(files))
	for _, f := range files {
		out := scan.OutputPath(f, outputDir, cfg.Compression.OutputSuffix)
		if explicitFile {
			out = outputPath
		}
		requests = append(requests, engine.Request{
			InputPath:      f,
			OutputPath:     out,
			Tier:           tier,
			Overrides:      overrides,
			UseGhostscript: cfg.Compression.UseGhostscript && !noGS,
			UseQPDF:        cfg.Compression.UseQPDF && !noQPDF,
			AllowFallback:  cfg.Compression.AllowFallback && !noFallback,
		})
	}
	return requests, nil
}

// runProbe prints the backend availability table.
func runProbe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	eng := buildEngine(cfg, log)

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println("Compression backends:")
	for _, d := range eng.ProbeBackends(ctx) {
		status := "not available"
		if d.Available {
			status = "available"
		}
		fmt.Printf("  %-12s %-14s priority=%d", d.Name, status, d.Priority)
		if d.Version != "" {
			fmt.Printf(" version=%s", d.Version)
		}
		if d.Path != "" {
			fmt.Printf(" path=%s", d.Path)
		}
		fmt.Printf(" capabilities=%s\n", strings.Join(d.Capabilities, ","))
	}
	return nil
}

// runInspect prints metadata for a single PDF.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	log := logrus.New()
	if !verbose {
		log.SetLevel(logrus.WarnLevel)
	}

	info, err := metadata.NewInspector(log).Inspect(filePath)
	if err != nil {
		return err
	}

	fmt.Printf("File:      %s\n", info.Path)
	fmt.Printf("Size:      %d bytes\n", info.Size)
	fmt.Printf("Pages:     %d\n", info.PageCount)
	if info.Title != "" {
		fmt.Printf("Title:     %s\n", info.Title)
	}
	if info.Author != "" {
		fmt.Printf("Author:    %s\n", info.Author)
	}
	if info.Producer != "" {
		fmt.Printf("Producer:  %s\n", info.Producer)
	}
	if info.Creator != "" {
		fmt.Printf("Creator:   %s\n", info.Creator)
	}
	fmt.Printf("Encrypted: %t\n", info.Encrypted)
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}

	log := setupLogger(cfg)
	eng := buildEngine(cfg, log)
	server := web.NewServer(cfg, log, eng, metadata.NewInspector(log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("PDF Compressor web interface started on http://localhost:%d\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI logging overrides.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(cfgFile)
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so in-flight
// backend subprocesses are terminated rather than orphaned.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printOutcome writes one per-file progress line.
func printOutcome(outcome engine.Outcome) {
	switch outcome.Status {
	case engine.StatusSuccess:
		fmt.Printf("%s: %d -> %d bytes (-%.1f%%, %s)\n",
			outcome.InputPath, outcome.OriginalSize, outcome.FinalSize,
			outcome.SavedPercent(), outcome.Winning.Backend)
	case engine.StatusNoImprovement:
		fmt.Printf("%s: already optimally sized\n", outcome.InputPath)
	case engine.StatusInvalidInput:
		fmt.Printf("%s: invalid input (%s)\n", outcome.InputPath, outcome.Detail)
	default:
		fmt.Printf("%s: all backends failed\n", outcome.InputPath)
	}
}

// thumbnailPath derives the thumbnail location for a compressed output.
func thumbnailPath(cfg *config.Config, pdfPath string) string {
	name := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath)) + ".jpg"
	if cfg.Thumbnails.Dir != "" {
		return filepath.Join(cfg.Thumbnails.Dir, name)
	}
	return filepath.Join(filepath.Dir(pdfPath), name)
}

// ghostscriptPath returns the probed Ghostscript path, if available.
func ghostscriptPath(descs []backend.Descriptor) string {
	for _, d := range descs {
		if d.Name == preset.BackendGhostscript && d.Available {
			return d.Path
		}
	}
	return ""
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
