package cgls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/interob/coardas/internal/timeslice"
)

// ErrNotAdvertised reports that a product's manifest lists no datafile
// for the requested time slice.
var ErrNotAdvertised = errors.New("not advertised by product manifest")

const (
	downloadBufferSize = 4096
	downloadAttempts   = 3
)

var downloadRetryWait = 5 * time.Second

// Credentials authenticate datafile downloads against the Copernicus
// data pool. Username/password ride along as HTTP basic auth; when a
// token URL is configured the client-credentials flow takes over.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// HTTPClient builds the client downloads go through.
func (c Credentials) HTTPClient(ctx context.Context) *http.Client {
	if c.TokenURL != "" {
		cfg := clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     c.TokenURL,
		}
		return cfg.Client(ctx)
	}
	return &http.Client{}
}

// Accessor facilitates access to one product's datafiles: answers what
// the manifest advertises and stages datafiles from mirror or remote.
type Accessor struct {
	product  *Product
	client   *http.Client
	creds    Credentials
	manifest []string
	mirror   *Mirror
	scratch  string
}

// NewAccessor fetches the product manifest and keeps it for the life of
// the accessor. An unreachable manifest means the product cannot take
// part in a run at all.
func NewAccessor(ctx context.Context, client *http.Client, creds Credentials, product *Product, mirror *Mirror, scratch string) (*Accessor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, product.ManifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for %s: %w", product.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch manifest for %s: %s", product.Name, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", product.Name, err)
	}
	log.Info().Msgf("Loaded manifest for %s", product.Name)
	return &Accessor{
		product:  product,
		client:   client,
		creds:    creds,
		manifest: splitLines(string(body)),
		mirror:   mirror,
		scratch:  scratch,
	}, nil
}

func (a *Accessor) Product() *Product { return a.product }

// manifestIndex finds the manifest line whose tail matches the resolved
// manifest pattern. Named capture groups in the pattern come back so
// they can feed datafile resolution.
func (a *Accessor) manifestIndex(resolved string) (int, map[string]string) {
	patn, err := regexp.Compile(".+" + resolved + "$")
	if err != nil {
		log.Warn().Msgf("Unusable manifest pattern %q: %v", resolved, err)
		return -1, nil
	}
	for i, line := range a.manifest {
		m := patn.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		groups := make(map[string]string)
		for gi, name := range patn.SubexpNames() {
			if name != "" && gi < len(m) {
				groups[name] = m[gi]
			}
		}
		return i, groups
	}
	return -1, nil
}

// IsAdvertised reports whether the manifest lists a datafile for the
// time slice.
func (a *Accessor) IsAdvertised(step timeslice.Dekad) bool {
	i, _ := a.manifestIndex(step.Resolve(a.product.ManifestPattern, nil))
	return i >= 0
}

// Acquire stages the datafile for a time slice and returns its local
// path. Staging policy: an already staged file wins, then a mirror
// copy, then a fresh download. Fresh downloads land in the writable
// mirror when one is configured, else in the scratch directory.
//
// The release func undoes staging: it removes the file only when it was
// downloaded to scratch by this call. Mirror copies and pre-existing
// files stay. Safe to call on every exit path.
func (a *Accessor) Acquire(ctx context.Context, step timeslice.Dekad) (string, func(), error) {
	noop := func() {}

	i, groups := a.manifestIndex(step.Resolve(a.product.ManifestPattern, nil))
	if i < 0 {
		return "", noop, fmt.Errorf("%s %s: %w", a.product.Name, step, ErrNotAdvertised)
	}
	datafile := step.Resolve(a.product.DatafilePattern, groups)

	target := filepath.Join(a.scratch, datafile)
	if a.mirror != nil {
		target = filepath.Join(a.mirror.Path, datafile)
	}
	if _, err := os.Stat(target); err == nil {
		return target, noop, nil
	}
	if a.mirror != nil && a.mirror.Readonly {
		return "", noop, fmt.Errorf("attempt to write to read-only mirror (%s)", target)
	}

	part := target + ".part"
	if err := os.MkdirAll(filepath.Dir(part), 0o755); err != nil {
		return "", noop, fmt.Errorf("failed to stage %s: %w", target, err)
	}
	if err := a.download(ctx, a.manifest[i], part); err != nil {
		os.Remove(part)
		return "", noop, err
	}
	if err := os.Rename(part, target); err != nil {
		os.Remove(part)
		return "", noop, fmt.Errorf("failed to finalize download of %s: %w", target, err)
	}

	if a.mirror != nil {
		return target, noop, nil
	}
	release := func() {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			log.Warn().Msgf("Failed to clean up %s: %v", target, err)
		}
	}
	return target, release, nil
}

func (a *Accessor) download(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 0; attempt < downloadAttempts; attempt++ {
		if attempt > 0 {
			log.Warn().Msgf("Download failed, retrying: %v", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(downloadRetryWait):
			}
		}
		var retryable bool
		retryable, lastErr = a.fetch(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		if !retryable {
			break
		}
	}
	return lastErr
}

func (a *Accessor) fetch(ctx context.Context, url, dest string) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	if a.creds.Username != "" {
		req.SetBasicAuth(a.creds.Username, a.creds.Password)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(dest))
	_, err = io.CopyBuffer(io.MultiWriter(f, bar), resp.Body, make([]byte, downloadBufferSize))
	bar.Close()
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return true, fmt.Errorf("failed to download %s: %w", url, err)
	}
	return false, nil
}

func splitLines(s string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
