// Package visual captures page screenshots over a CDP endpoint and compares
// them against committed baselines. First runs create the baseline; later
// runs diff against it pixel by pixel.
package visual

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"

	"aetherlens/pkg/logging"
)

// BaselineDirName is where baselines live, relative to the target directory.
const BaselineDirName = "tests/baselines"

// DefaultThreshold is the tolerated fraction of differing pixels.
const DefaultThreshold = 0.01

// Outcome is the result of one visual check.
type Outcome struct {
	Passed   bool
	Error    string
	Artifact string // current screenshot or diff image path
	Baseline string // set on first runs, e.g. "Baseline created"
}

// Checker runs visual checks against one provisioned endpoint.
type Checker struct {
	endpoint  string
	baseURL   string
	targetDir string
	threshold float64

	// capture is swapped in tests.
	capture func(ctx context.Context, url string, width, height int64) ([]byte, error)
}

// NewChecker creates a checker attached to the CDP endpoint. baseURL is the
// application under test, targetDir the project root holding baselines.
func NewChecker(endpoint, baseURL, targetDir string, threshold float64) *Checker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c := &Checker{
		endpoint:  endpoint,
		baseURL:   baseURL,
		targetDir: targetDir,
		threshold: threshold,
	}
	c.capture = c.screenshot
	return c
}

// Check navigates to pagePath at the given viewport ("WxH", empty for the
// default) and compares the capture against the stored baseline.
func (c *Checker) Check(ctx context.Context, label, pagePath, viewport string) Outcome {
	width, height := parseViewport(viewport)
	url := strings.TrimSuffix(c.baseURL, "/") + pagePath

	shot, err := c.capture(ctx, url, width, height)
	if err != nil {
		return Outcome{Passed: false, Error: fmt.Sprintf("capturing %s: %v", url, err)}
	}

	key := slug(label)
	baselineDir := filepath.Join(c.targetDir, BaselineDirName)
	if err := os.MkdirAll(baselineDir, 0o755); err != nil {
		return Outcome{Passed: false, Error: err.Error()}
	}
	baselinePath := filepath.Join(baselineDir, key+".png")

	if _, err := os.Stat(baselinePath); os.IsNotExist(err) {
		if err := os.WriteFile(baselinePath, shot, 0o644); err != nil {
			return Outcome{Passed: false, Error: fmt.Sprintf("writing baseline: %v", err)}
		}
		logging.Info("Visual", "baseline created for %s at %s", label, baselinePath)
		return Outcome{Passed: true, Artifact: baselinePath, Baseline: "Baseline created"}
	}

	currentPath := filepath.Join(baselineDir, key+"_current.png")
	if err := os.WriteFile(currentPath, shot, 0o644); err != nil {
		return Outcome{Passed: false, Error: fmt.Sprintf("writing screenshot: %v", err)}
	}

	ratio, diffImg, err := comparePNGs(baselinePath, currentPath)
	if err != nil {
		return Outcome{Passed: false, Error: err.Error(), Artifact: currentPath}
	}
	if ratio > c.threshold {
		diffPath := filepath.Join(baselineDir, key+"_diff.png")
		if werr := writePNG(diffPath, diffImg); werr != nil {
			logging.Warn("Visual", "writing diff image: %v", werr)
			diffPath = currentPath
		}
		return Outcome{
			Passed:   false,
			Error:    fmt.Sprintf("%.2f%% of pixels differ from baseline (threshold %.2f%%)", ratio*100, c.threshold*100),
			Artifact: diffPath,
		}
	}
	return Outcome{Passed: true, Artifact: currentPath}
}

// screenshot drives the remote browser for one full-page capture.
func (c *Checker) screenshot(ctx context.Context, url string, width, height int64) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, c.endpoint)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(width, height),
		chromedp.Navigate(url),
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// parseViewport parses "WxH", defaulting to 1280x720.
func parseViewport(viewport string) (int64, int64) {
	parts := strings.SplitN(viewport, "x", 2)
	if len(parts) != 2 {
		return 1280, 720
	}
	w, werr := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	h, herr := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if werr != nil || herr != nil || w <= 0 || h <= 0 {
		return 1280, 720
	}
	return w, h
}

// slug converts a test label to a filesystem-safe baseline key.
func slug(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '/', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
