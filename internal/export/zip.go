// Package export bundles stored experiment sessions into downloadable
// ZIP archives and single-page HTML reports.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/physics-lab/internal/domain"
)

const readmeHowTo = `
## How to Use:
1. Open each markdown (.md) file in a text editor or markdown viewer
2. Follow the methodology step-by-step
3. Use the data templates to record your measurements
4. Complete your report using the report template
5. View images in the 'images/' folder

Good luck with your experiment!
`

// Bundler builds ZIP archives, downloading session images as it goes.
type Bundler struct {
	client *http.Client
	logger *slog.Logger
}

// NewBundler creates a Bundler whose image downloads use timeout.
func NewBundler(timeout time.Duration, logger *slog.Logger) *Bundler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bundler{client: &http.Client{Timeout: timeout}, logger: logger}
}

// ToZip writes every file verbatim, each downloadable image under images/,
// an experiment_images.txt manifest when images exist, and a README.txt.
// A failed image download is recorded in the manifest and does not abort
// the archive.
func (b *Bundler) ToZip(ctx context.Context, files map[string]string, images []string, sessionID string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	names := OrderedNames(files)
	for _, name := range names {
		if err := writeEntry(zw, name, []byte(files[name])); err != nil {
			return nil, err
		}
	}

	if len(images) > 0 {
		var manifest strings.Builder
		manifest.WriteString("# Experiment Images\n\n")
		for i, url := range images {
			idx := i + 1
			data, err := b.download(ctx, url)
			if err != nil {
				b.logger.Warn("image download failed", "session_id", sessionID, "url", url, "error", err)
				fmt.Fprintf(&manifest, "%d. %s (download failed: %v)\n", idx, url, err)
				continue
			}
			name := fmt.Sprintf("image_%03d.jpg", idx)
			if err := writeEntry(zw, "images/"+name, data); err != nil {
				return nil, err
			}
			fmt.Fprintf(&manifest, "%d. %s (from %s)\n", idx, name, url)
		}
		if err := writeEntry(zw, "experiment_images.txt", []byte(manifest.String())); err != nil {
			return nil, err
		}
	}

	if err := writeEntry(zw, "README.txt", []byte(readme(names, len(images), sessionID))); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Bundler) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func readme(names []string, imageCount int, sessionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Physics Experiment - Session %s\n\n", sessionID)
	b.WriteString("This archive contains your complete physics experiment guide.\n\n## Files Included:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	if imageCount > 0 {
		fmt.Fprintf(&b, "\n## Images: %d found\n", imageCount)
		b.WriteString("Images are stored in the 'images/' folder and listed in experiment_images.txt\n")
	}
	b.WriteString(readmeHowTo)
	return b.String()
}

// OrderedNames returns the canonical documents present in files, in
// canonical order, followed by the remaining names sorted.
func OrderedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for _, name := range domain.CanonicalFiles {
		if _, ok := files[name]; ok {
			names = append(names, name)
		}
	}
	var rest []string
	for name := range files {
		if !slices.Contains(domain.CanonicalFiles, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
