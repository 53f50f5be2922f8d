package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crossfit/internal/config"
	"crossfit/internal/plan"
	logx "crossfit/pkg/logx"
)

// Locate finds the discovery document path. Order: explicit argument,
// environment variable announced by setup, known filename under the mount.
func Locate(explicit, hostMount string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := strings.TrimSpace(os.Getenv(config.EnvDiscoveryPath)); p != "" {
		return p, nil
	}
	if hostMount != "" {
		return filepath.Join(hostMount, filepath.FromSlash(plan.DiscoveryRelPath)), nil
	}
	return "", fmt.Errorf("discovery document location unknown (no path, no %s, no mount)", config.EnvDiscoveryPath)
}

// Read loads and parses the document with a whole-file read. The site
// overwrites the file on every admin request, so a read can catch a
// truncated write; retry briefly before giving up.
func Read(path string, log logx.Logger) (*Document, error) {
	const (
		attempts = 5
		backoff  = 100 * time.Millisecond
	)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(backoff)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		var doc Document
		if err := json.Unmarshal(b, &doc); err != nil {
			// Mid-rewrite; the next snapshot should be whole.
			log.Debug("discovery document torn; retrying", logx.String("path", path), logx.Err(err))
			lastErr = err
			continue
		}
		return &doc, nil
	}
	return nil, fmt.Errorf("read discovery document %s: %w", path, lastErr)
}
