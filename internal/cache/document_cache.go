package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"transitchat/internal/ai"
)

// DocumentStatus reports one configured reference file for the status
// endpoint.
type DocumentStatus struct {
	Filename     string `json:"filename"`
	PresentLocal bool   `json:"present_local"`
}

// DocumentCache caches uploaded document handles per session for the
// process lifetime. Handles do not survive a restart; the session's durable
// pdfs_uploaded flag is the cross-process record, and a cold cache simply
// re-uploads on the next resolve.
type DocumentCache struct {
	uploader  ai.Uploader
	dir       string
	filenames []string
	logger    *zap.Logger

	mu      sync.Mutex
	handles map[string][]ai.DocumentHandle
}

func NewDocumentCache(uploader ai.Uploader, dir string, filenames []string, logger *zap.Logger) *DocumentCache {
	return &DocumentCache{
		uploader:  uploader,
		dir:       dir,
		filenames: filenames,
		logger:    logger,
		handles:   make(map[string][]ai.DocumentHandle),
	}
}

// Resolve returns the cached handles for the session, or uploads the
// configured files on a miss. Missing local files and per-file upload
// failures are skipped with a warning; partial success is cached as-is.
// Zero successes returns an empty result without caching, so the next turn
// retries.
func (c *DocumentCache) Resolve(ctx context.Context, sessionID string) ([]ai.DocumentHandle, error) {
	c.mu.Lock()
	cached, ok := c.handles[sessionID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var uploaded []ai.DocumentHandle
	for _, filename := range c.filenames {
		path := filepath.Join(c.dir, filename)
		if _, err := os.Stat(path); err != nil {
			c.logger.Warn("reference document missing, skipping",
				zap.String("file", path),
				zap.Error(err))
			continue
		}

		handle, err := c.uploader.Upload(ctx, path)
		if err != nil {
			c.logger.Warn("reference document upload failed, skipping",
				zap.String("file", path),
				zap.Error(err))
			continue
		}
		uploaded = append(uploaded, handle)
	}

	if len(uploaded) == 0 {
		c.logger.Warn("no reference documents uploaded for session",
			zap.String("session_id", sessionID))
		return nil, nil
	}

	c.mu.Lock()
	c.handles[sessionID] = uploaded
	c.mu.Unlock()
	return uploaded, nil
}

func (c *DocumentCache) Invalidate(sessionID string) {
	c.mu.Lock()
	delete(c.handles, sessionID)
	c.mu.Unlock()
}

// Warm reports whether handles are cached for the session without
// triggering an upload.
func (c *DocumentCache) Warm(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles[sessionID])
}

// Status lists the configured reference files and their local presence.
func (c *DocumentCache) Status() []DocumentStatus {
	statuses := make([]DocumentStatus, 0, len(c.filenames))
	for _, filename := range c.filenames {
		_, err := os.Stat(filepath.Join(c.dir, filename))
		statuses = append(statuses, DocumentStatus{
			Filename:     filename,
			PresentLocal: err == nil,
		})
	}
	return statuses
}
