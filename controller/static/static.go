package static

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"logingate/dto"
)

const AssetPrefix = "/static"

// Site serves the frontend from a directory fixed at startup.
type Site struct {
	dir       string
	indexFile string
	logger    *slog.Logger
}

// NewSite resolves dir to an absolute path and fails if it is not a directory.
func NewSite(dir, indexFile string, logger *slog.Logger) (*Site, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving frontend directory %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("frontend directory not found: %s", abs)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Site{dir: abs, indexFile: indexFile, logger: logger.With("component", "static")}, nil
}

func StaticController(router *gin.Engine, site *Site) {
	router.Static(AssetPrefix, site.dir)
	router.GET("/", site.Root)
}

// Root serves the entry document, checked on every request.
func (s *Site) Root(c *gin.Context) {
	path := filepath.Join(s.dir, s.indexFile)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		s.logger.Warn("entry document missing", "path", path)
		c.JSON(404, dto.ErrorResponse{Detail: s.indexFile + " not found in the frontend."})
		return
	}
	c.File(path)
}
