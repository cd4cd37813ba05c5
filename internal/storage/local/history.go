package local

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// HistoryStore keeps one newest-first text file of image URLs per domain.
type HistoryStore struct {
	dir     string
	maxURLs int
	mu      sync.Mutex
}

// NewHistoryStore builds a HistoryStore writing <dir>/<domain>.txt capped at maxURLs lines.
func NewHistoryStore(dir string, maxURLs int) (*HistoryStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("history directory is required")
	}
	if maxURLs <= 0 {
		return nil, fmt.Errorf("max history urls must be positive")
	}
	return &HistoryStore{dir: dir, maxURLs: maxURLs}, nil
}

// Path returns the history file of domain.
func (s *HistoryStore) Path(domain string) string {
	return filepath.Join(s.dir, domain+".txt")
}

// Read returns the stored URLs of domain, newest first. A missing file is empty.
func (s *HistoryStore) Read(domain string) ([]string, error) {
	// #nosec G304 -- the history path is derived from configured directory and domain host.
	data, err := os.ReadFile(s.Path(domain))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", domain, err)
	}
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history %s: %w", domain, err)
	}
	return urls, nil
}

// MergeAndSave prepends the URLs not already in the domain's history,
// truncates to the cap and overwrites the file.
func (s *HistoryStore) MergeAndSave(domain string, urls []string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Read(domain)
	if err != nil {
		return 0, 0, err
	}
	seen := make(map[string]struct{}, len(existing)+len(urls))
	for _, u := range existing {
		seen[u] = struct{}{}
	}
	fresh := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		fresh = append(fresh, u)
	}

	merged := append(fresh, existing...)
	if len(merged) > s.maxURLs {
		merged = merged[:s.maxURLs]
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return 0, 0, fmt.Errorf("create history dir: %w", err)
	}
	// #nosec G306 -- history files are published alongside the repository.
	if err := os.WriteFile(s.Path(domain), []byte(strings.Join(merged, "\n")), 0o644); err != nil {
		return 0, 0, fmt.Errorf("write history %s: %w", domain, err)
	}
	return len(fresh), len(merged), nil
}
