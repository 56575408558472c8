package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the single page client from staticDir. Unknown paths
// outside /api/ fall back to index.html so client side routes survive a
// reload.
func (s *Server) mountStatic() {
	s.engine.NoRoute(s.handleNotFound)

	if s.staticDir == "" {
		s.logger.Info("no static directory configured, serving the API only")
		return
	}
	if info, err := os.Stat(s.staticDir); err != nil || !info.IsDir() {
		s.logger.Warn("static directory missing", "path", s.staticDir, "error", err)
		return
	}

	index := filepath.Join(s.staticDir, "index.html")
	if !fileExists(index) {
		s.logger.Warn("index.html not found", "path", index)
		return
	}
	s.index = index
	s.engine.GET("/", func(c *gin.Context) {
		c.File(index)
	})

	if assets := filepath.Join(s.staticDir, "assets"); fileExists(assets) {
		s.engine.StaticFS("/assets", gin.Dir(assets, false))
	}
	for _, name := range []string{"favicon.ico", "manifest.webmanifest", "robots.txt"} {
		if path := filepath.Join(s.staticDir, name); fileExists(path) {
			s.engine.StaticFile("/"+name, path)
		}
	}
}

func (s *Server) handleNotFound(c *gin.Context) {
	if s.index == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
		return
	}
	c.File(s.index)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
