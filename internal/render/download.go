package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// assetKeys are tried in this order at every level of the poll
// response before descending further.
var assetKeys = []string{"video_url", "url", "download_url", "output_url"}

// findAssetURL walks the decoded response looking for the first
// http(s) string under a known asset key. Map descent is sorted so the
// result is stable.
func findAssetURL(node interface{}) (string, bool) {
	switch v := node.(type) {
	case map[string]interface{}:
		for _, key := range assetKeys {
			if s, ok := v[key].(string); ok && strings.HasPrefix(s, "http") {
				return s, true
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := findAssetURL(v[k]); ok {
				return s, true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := findAssetURL(item); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Downloader fetches produced clips into the run directory.
type Downloader struct {
	httpClient *http.Client
}

func NewDownloader(requestTimeout int) *Downloader {
	if requestTimeout <= 0 {
		requestTimeout = 60
	}
	return &Downloader{
		httpClient: &http.Client{
			Timeout: time.Duration(requestTimeout) * time.Second,
		},
	}
}

// Download writes the asset at url to outputPath, creating parent
// directories as needed. A zero-byte download is an error.
func (d *Downloader) Download(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clip download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("failed to write clip: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("downloaded clip %s is empty", outputPath)
	}

	return nil
}
