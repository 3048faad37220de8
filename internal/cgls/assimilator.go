package cgls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/interob/coardas/internal/raster"
	"github.com/interob/coardas/internal/report"
	"github.com/interob/coardas/internal/timeslice"
)

// Config drives one assimilation run.
type Config struct {
	TargetResolution string
	TargetAOI        AOI
	OutputDir        string
	// NamingPattern names each output, resolved per dekad; ".tif" is
	// appended.
	NamingPattern string
	Begin, End    timeslice.Dekad
	Credentials   Credentials
	Scratch       string
	Sink          raster.Sink
	// FootprintPath, when set, receives a GeoJSON sidecar once the
	// aligned AOI is established.
	FootprintPath string
}

// Assimilator concatenates the archives of compatible CGLS products
// into a single dekadal time series. Overlap resolves first come first
// served, in registration order; products on a finer grid resample into
// the target grid. Output format is GeoTIFF.
type Assimilator struct {
	cfg        Config
	client     *http.Client
	accessors  []*Accessor
	alignedAOI *AOI
	rows       []*report.Row
}

func NewAssimilator(ctx context.Context, cfg Config) *Assimilator {
	return &Assimilator{cfg: cfg, client: cfg.Credentials.HTTPClient(ctx)}
}

// Register adds a product to the run. Assimilation order follows
// registration order.
func (a *Assimilator) Register(ctx context.Context, product *Product, mirror *Mirror) error {
	acc, err := NewAccessor(ctx, a.client, a.cfg.Credentials, product, mirror, a.cfg.Scratch)
	if err != nil {
		return err
	}
	a.accessors = append(a.accessors, acc)
	return nil
}

// AlignedAOI is the box the run ingests, established by Prepare.
func (a *Assimilator) AlignedAOI() (AOI, bool) {
	if a.alignedAOI == nil {
		return AOI{}, false
	}
	return *a.alignedAOI, true
}

// Rows reports what happened to each time slice walked so far.
func (a *Assimilator) Rows() []*report.Row { return a.rows }

// Prepare walks the period until every product has shown its first
// advertised time slice, then reconciles one AOI that aligns across all
// of their grids. A step no product covers fails the run before any
// output is written.
func (a *Assimilator) Prepare(ctx context.Context) error {
	if len(a.accessors) == 0 {
		return errors.New("no products registered")
	}

	type firstHit struct {
		accessor int
		step     timeslice.Dekad
	}
	var hits []firstHit
	seen := make(map[int]bool)
	for cursor := a.cfg.Begin; !cursor.EndsAfterPeriod(a.cfg.End); cursor = cursor.Next() {
		hit := -1
		for i, acc := range a.accessors {
			if acc.IsAdvertised(cursor) {
				hit = i
				break
			}
		}
		if hit < 0 {
			return fmt.Errorf("no product found for %s", cursor)
		}
		if !seen[hit] {
			seen[hit] = true
			hits = append(hits, firstHit{hit, cursor})
		}
		if len(hits) == len(a.accessors) {
			break
		}
	}

	var translators []Translator
	for _, h := range hits {
		acc := a.accessors[h.accessor]
		log.Info().Msgf("Reconciling %s from its first hit at %s", acc.product.Name, h.step)
		path, release, err := acc.Acquire(ctx, h.step)
		if err != nil {
			return err
		}
		tr, err := acc.product.GetTranslator(path, a.cfg.TargetResolution, a.cfg.Sink)
		release()
		if err != nil {
			return err
		}
		translators = append(translators, tr)
		aligned, ok, err := findAlignedAOI(translators, a.cfg.TargetAOI, len(translators)-1)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("unable to establish an aligned AOI across products")
		}
		a.alignedAOI = &aligned
	}

	if a.alignedAOI != nil {
		log.Info().Msgf("Aligned AOI: %s", *a.alignedAOI)
		if a.cfg.FootprintPath != "" {
			names := make([]string, len(a.accessors))
			for i, acc := range a.accessors {
				names[i] = acc.product.Name
			}
			if err := WriteFootprint(a.cfg.FootprintPath, a.cfg.TargetAOI, *a.alignedAOI, names, a.cfg.TargetResolution); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ingest walks the period and translates each uncovered time slice from
// the first product advertising it. Existing outputs are kept, so an
// interrupted run resumes where it stopped. The first failing step
// aborts the rest of the walk.
func (a *Assimilator) Ingest(ctx context.Context) error {
	if a.alignedAOI == nil {
		return errors.New("no aligned AOI established, run Prepare first")
	}
	steps := a.cfg.End.Diff(a.cfg.Begin) + 1
	if steps < 0 {
		steps = 0
	}
	bar := progressbar.Default(int64(steps), "ingesting")
	defer bar.Close()
	for cursor := a.cfg.Begin; !cursor.EndsAfterPeriod(a.cfg.End); cursor = cursor.Next() {
		if err := a.ingestStep(ctx, cursor); err != nil {
			return err
		}
		bar.Add(1)
	}
	return nil
}

func (a *Assimilator) ingestStep(ctx context.Context, cursor timeslice.Dekad) error {
	outputPath := filepath.Join(a.cfg.OutputDir, cursor.Resolve(a.cfg.NamingPattern, nil)) + ".tif"
	row := &report.Row{
		Dekad:       cursor.String(),
		PeriodStart: cursor.PeriodStart().Format("2006-01-02"),
		PeriodEnd:   cursor.PeriodEnd().Format("2006-01-02"),
		Output:      outputPath,
	}
	a.rows = append(a.rows, row)

	if _, err := os.Stat(outputPath); err == nil {
		row.Status = report.StatusSkipped
		log.Info().Msgf("Keeping existing %s", outputPath)
		return nil
	}

	acc := a.firstAdvertiser(cursor)
	if acc == nil {
		return a.fail(row, fmt.Errorf("no product advertises %s", cursor))
	}
	row.Product = acc.product.Name

	path, release, err := acc.Acquire(ctx, cursor)
	if err != nil {
		return a.fail(row, err)
	}
	defer release()

	sink := &taggedSink{inner: a.cfg.Sink, tags: map[string]string{
		"PRODUCT":      acc.product.Name,
		"PERIOD_START": row.PeriodStart,
		"PERIOD_END":   row.PeriodEnd,
		"SOURCE":       filepath.Base(path),
	}}
	tr, err := acc.product.GetTranslator(path, a.cfg.TargetResolution, sink)
	if err != nil {
		return a.fail(row, err)
	}
	echo, err := tr.AlignedAOI(*a.alignedAOI)
	if err != nil {
		return a.fail(row, err)
	}
	if !aoisEqual(echo, *a.alignedAOI) {
		return a.fail(row, fmt.Errorf("%s no longer aligns with the session AOI at %s", acc.product.Name, cursor))
	}
	if err := tr.Translate(path, acc.product.Variable, *a.alignedAOI, outputPath); err != nil {
		return a.fail(row, err)
	}
	row.Status = report.StatusWritten
	return nil
}

func (a *Assimilator) fail(row *report.Row, err error) error {
	row.Status = report.StatusFailed
	row.Detail = err.Error()
	log.Error().Msgf("Failed to ingest %s: %v", row.Dekad, err)
	return err
}

func (a *Assimilator) firstAdvertiser(cursor timeslice.Dekad) *Accessor {
	for _, acc := range a.accessors {
		if acc.IsAdvertised(cursor) {
			return acc
		}
	}
	return nil
}

// taggedSink stamps the provenance of one ingest step onto whatever its
// translator writes.
type taggedSink struct {
	inner raster.Sink
	tags  map[string]string
}

func (s *taggedSink) WriteRaster(path string, dn []float64, width, height int, o raster.WriteOptions) error {
	tags := make(map[string]string, len(o.Tags)+len(s.tags))
	for k, v := range o.Tags {
		tags[k] = v
	}
	for k, v := range s.tags {
		tags[k] = v
	}
	o.Tags = tags
	return s.inner.WriteRaster(path, dn, width, height, o)
}
