package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/services"
)

// Metadata is the subset of yt-dlp --dump-json output the pipeline needs.
type Metadata struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Duration      float64 `json:"duration"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Uploader      string  `json:"uploader"`
	UploadDate    string  `json:"upload_date"`
	AgeRestricted bool    `json:"age_restricted"`
}

// Downloader acquires source videos through yt-dlp. Local files bypass the
// network entirely.
type Downloader struct {
	binary string
	cfg    config.Download
	run    CommandRunner
}

// NewDownloader builds a downloader from configuration.
func NewDownloader(cfg *config.Config) *Downloader {
	return &Downloader{
		binary: cfg.YtDlpBinary(),
		cfg:    cfg.Download,
		run:    runCommand,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *Downloader) WithCommandRunner(run CommandRunner) {
	d.run = run
}

// Probe fetches metadata without downloading and enforces availability and
// duration limits. The probe has its own network timeout; hitting it is an
// ordinary retryable failure.
func (d *Downloader) Probe(ctx context.Context, url string) (*Metadata, error) {
	timeout := time.Duration(d.cfg.NetworkTimeout) * time.Second
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := d.run(probeCtx, d.binary, "--dump-json", "--no-playlist", "--no-warnings", url)
	if err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return nil, services.Wrap(services.ErrTimeout, "download", "probe",
				fmt.Sprintf("metadata probe exceeded %s", timeout), err)
		}
		return nil, classifyProbeError(err)
	}

	var meta Metadata
	if jsonErr := json.Unmarshal(out, &meta); jsonErr != nil {
		return nil, services.Wrap(services.ErrExternalTool, "download", "probe", "parse yt-dlp json", jsonErr)
	}

	if meta.AgeRestricted {
		return nil, services.Wrap(services.ErrValidation, "download", "probe", "video is age-restricted", nil)
	}
	if max := d.cfg.MaxVideoMinutes; max > 0 && meta.Duration > float64(max)*60 {
		return nil, services.Wrap(services.ErrValidation, "download", "probe",
			fmt.Sprintf("video is %.0f minutes, limit is %d", meta.Duration/60, max), nil)
	}
	return &meta, nil
}

// classifyProbeError maps yt-dlp stderr phrasing onto sentinel errors so the
// retry policy can tell a dead video from a flaky network.
func classifyProbeError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "private video"):
		return services.Wrap(services.ErrNotFound, "download", "probe", "video is private", err)
	case strings.Contains(msg, "deleted"), strings.Contains(msg, "not found"),
		strings.Contains(msg, "unavailable"):
		return services.Wrap(services.ErrNotFound, "download", "probe", "video is unavailable", err)
	case strings.Contains(msg, "age"), strings.Contains(msg, "sign in"):
		return services.Wrap(services.ErrValidation, "download", "probe", "video is age-restricted", err)
	case strings.Contains(msg, "region"), strings.Contains(msg, "geo"), strings.Contains(msg, "country"):
		return services.Wrap(services.ErrValidation, "download", "probe", "video is region-locked", err)
	default:
		return services.Wrap(services.ErrExternalTool, "download", "probe", "yt-dlp failed", err)
	}
}

// Download fetches the video to destDir and returns the file path. The
// timeout scales with the probed duration so long lectures are not killed by
// a fixed budget.
func (d *Downloader) Download(ctx context.Context, url, destDir string, meta *Metadata) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "download", "fetch", "create work dir", err)
	}
	dest := filepath.Join(destDir, meta.ID+".mp4")

	timeout := d.downloadBudget(meta.Duration)
	dlCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-f", d.cfg.Format,
		"--no-playlist",
		"--no-warnings",
		"-o", dest,
		url,
	}
	if _, err := d.run(dlCtx, d.binary, args...); err != nil {
		if dlCtx.Err() == context.DeadlineExceeded {
			return "", services.Wrap(services.ErrTimeout, "download", "fetch",
				fmt.Sprintf("download exceeded %s", timeout), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "download", "fetch", "yt-dlp failed", err)
	}

	if _, err := os.Stat(dest); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "download", "fetch", "yt-dlp produced no file", err)
	}
	return dest, nil
}

func (d *Downloader) downloadBudget(durationSec float64) time.Duration {
	perMinute := d.cfg.TimeoutPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	minutes := durationSec / 60
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes*float64(perMinute)) * time.Second
}

// ResolveLocal checks whether source names a readable local video file and
// returns its absolute path. Used to bypass the download stage entirely.
func ResolveLocal(source string) (string, bool) {
	if strings.Contains(source, "://") {
		return "", false
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}
	return abs, true
}
