package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultRefreshInterval = 10 * time.Minute

// FilePaths is a Source reading secrets from a directory, one file per
// secret, named <org>.<tokenType>. A background refresher picks up
// rotated secrets, so the process never needs a restart for rotation.
type FilePaths struct {
	mu      sync.RWMutex
	dir     string
	secrets map[string][]byte
	quit    chan struct{}
	once    sync.Once
}

// NewFilePaths creates a file-backed Source over dir and starts a
// refresher with the given interval, defaulting to 10 minutes. On tear
// down make sure to Close() it.
func NewFilePaths(dir string, refreshInterval time.Duration) (*FilePaths, error) {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	fp := &FilePaths{
		dir:     dir,
		secrets: make(map[string][]byte),
		quit:    make(chan struct{}),
	}
	if err := fp.refresh(); err != nil {
		return nil, err
	}
	go fp.runRefresher(refreshInterval)
	return fp, nil
}

func (fp *FilePaths) GetSecret(_ context.Context, org, tokenType string) ([]byte, bool, error) {
	fp.mu.RLock()
	sec, ok := fp.secrets[org+"/"+tokenType]
	fp.mu.RUnlock()
	return sec, ok, nil
}

func (fp *FilePaths) Close() {
	if fp == nil {
		return
	}
	fp.once.Do(func() { close(fp.quit) })
}

func (fp *FilePaths) refresh() error {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		return err
	}

	fresh := make(map[string][]byte)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		org, tokenType, ok := strings.Cut(e.Name(), ".")
		if !ok || org == "" || tokenType == "" {
			continue
		}
		dat, err := os.ReadFile(filepath.Join(fp.dir, e.Name()))
		if err != nil {
			log.Errorf("failed to read secret file %s: %v", e.Name(), err)
			continue
		}
		if len(dat) > 0 && dat[len(dat)-1] == '\n' {
			dat = dat[:len(dat)-1]
		}
		if len(dat) == 0 {
			continue
		}
		fresh[org+"/"+tokenType] = dat
	}

	fp.mu.Lock()
	fp.secrets = fresh
	fp.mu.Unlock()
	return nil
}

func (fp *FilePaths) runRefresher(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := fp.refresh(); err != nil {
				log.Errorf("failed to refresh secrets from %s: %v", fp.dir, err)
			}
		case <-fp.quit:
			return
		}
	}
}
