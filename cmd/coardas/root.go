package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/interob/coardas/internal/cgls"
	"github.com/interob/coardas/internal/notification"
	"github.com/interob/coardas/internal/properties"
	"github.com/interob/coardas/internal/quicklook"
	"github.com/interob/coardas/internal/raster"
	"github.com/interob/coardas/internal/report"
	"github.com/interob/coardas/internal/timeslice"
)

var (
	outputDir     string
	resolution    string
	namingPattern string
	beginDate     string
	endDate       string
	aoi           []float64
	mirrorFlags   []string
	username      string
	password      string
	scratchDir    string
	reportPath    string
	footprint     bool
	quicklooks    bool
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "coardas [products]",
	Short: "Assimilate CGLS vegetation index archives into one dekadal time series",
	Long: `coardas concatenates the archives of compatible Copernicus Global Land
Service products into a single dekadal time series over an area of
interest. Overlapping archives resolve first come, first served in the
order the products are given; finer products resample into the target
grid. Run "coardas products" to see the catalog.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIngest,
}

func init() {
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output: directory")
	rootCmd.Flags().StringVarP(&resolution, "resolution", "r", "1km", "Resolution: target resolution, following what CGLS advertises: 300m, 1km")
	rootCmd.Flags().StringVarP(&namingPattern, "naming", "n", "_CGLS_NDVI_$(yyyy)_$(mm)_d$(mdekad)",
		"Naming pattern; the following placeholders can be used: $(yyyy), $(mm), $(dd) and $(mdekad)")
	rootCmd.Flags().StringVarP(&beginDate, "begin-date", "b", "", "Start date: YYYY-MM-DD")
	rootCmd.Flags().StringVarP(&endDate, "end-date", "e", "", "End date: YYYY-MM-DD")
	rootCmd.Flags().Float64SliceVar(&aoi, "aoi", nil, "Area of Interest: <UL lon> <UL lat> <LR lon> <LR lat>. Example: --aoi=-26.0,38.0,60.0,-35.0")
	rootCmd.Flags().StringArrayVarP(&mirrorFlags, "local-mirror", "m", nil,
		"Mirror / pre-download location per product, as product,path,rw|ro; * for all. Example: -m CGLS_NDVI300_GLOBE_OLCI_V201,/var/data/NDVI_300m_V2,rw")
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "Copernicus username")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "Copernicus password")
	rootCmd.Flags().StringVarP(&scratchDir, "scratch", "s", "", "Path to temporary scratch dir")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "Write a CSV run report to this path")
	rootCmd.Flags().BoolVar(&footprint, "footprint", false, "Write an aoi.geojson footprint next to the outputs")
	rootCmd.Flags().BoolVar(&quicklooks, "quicklook", false, "Write a PNG quicklook next to each GeoTIFF")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(productsCmd)
}

func setupLogging(settings properties.Settings) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	settings, err := properties.Load()
	if err != nil {
		return err
	}
	setupLogging(settings)

	if outputDir == "" {
		return fmt.Errorf("an output directory is required (-o)")
	}
	if beginDate == "" || endDate == "" {
		return fmt.Errorf("a begin and end date are required (-b, -e)")
	}
	begin, err := parseDekad(beginDate)
	if err != nil {
		return err
	}
	end, err := parseDekad(endDate)
	if err != nil {
		return err
	}
	if len(aoi) != 4 {
		return fmt.Errorf("--aoi needs exactly 4 values, got %d", len(aoi))
	}
	targetAOI := cgls.AOI{ULLon: aoi[0], ULLat: aoi[1], LRLon: aoi[2], LRLat: aoi[3]}
	if err := targetAOI.Validate(); err != nil {
		return err
	}

	mirrors := make([]cgls.Mirror, 0, len(mirrorFlags))
	for _, directive := range mirrorFlags {
		m, err := cgls.ParseMirror(directive)
		if err != nil {
			return err
		}
		mirrors = append(mirrors, m)
	}

	creds := cgls.Credentials{
		Username:     settings.CopernicusUsername,
		Password:     settings.CopernicusPassword,
		ClientID:     settings.CopernicusClientID,
		ClientSecret: settings.CopernicusClientSecret,
		TokenURL:     settings.CopernicusTokenURL,
	}
	if username != "" {
		creds.Username = username
	}
	if password != "" {
		creds.Password = password
	}

	scratch := settings.Scratch
	if scratchDir != "" {
		scratch = scratchDir
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("failed to create scratch dir %s: %w", scratch, err)
	}

	var sink raster.Sink = raster.NewGeoTIFF()
	if quicklooks {
		sink = quicklook.New(sink)
	}

	cfg := cgls.Config{
		TargetResolution: resolution,
		TargetAOI:        targetAOI,
		OutputDir:        outputDir,
		NamingPattern:    namingPattern,
		Begin:            begin,
		End:              end,
		Credentials:      creds,
		Scratch:          scratch,
		Sink:             sink,
	}
	if footprint {
		cfg.FootprintPath = filepath.Join(outputDir, "aoi.geojson")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assimilator := cgls.NewAssimilator(ctx, cfg)
	for _, name := range args {
		product, err := cgls.ProductByName(name)
		if err != nil {
			return err
		}
		if err := assimilator.Register(ctx, product, cgls.MirrorFor(mirrors, product.Name)); err != nil {
			return err
		}
	}

	runErr := assimilator.Prepare(ctx)
	if runErr == nil {
		runErr = assimilator.Ingest(ctx)
	}

	if reportPath != "" {
		if err := report.Write(reportPath, assimilator.Rows()); err != nil {
			log.Warn().Msgf("Failed to write run report: %v", err)
		}
	}
	status, detail := "success", fmt.Sprintf("ingested %s through %s into %s", begin, end, outputDir)
	if runErr != nil {
		status, detail = "failed", runErr.Error()
	}
	notification.Notify(context.Background(), settings.WebhookURL, status, detail)
	return runErr
}

func parseDekad(date string) (timeslice.Dekad, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return timeslice.Dekad{}, fmt.Errorf("dates must be YYYY-MM-DD, got %q", date)
	}
	return timeslice.FromTime(t), nil
}
