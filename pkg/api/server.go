// Package api provides the REST API server for controlling lyrica playback
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/james-see/lyrica/pkg/keymap/layouts"
	"github.com/james-see/lyrica/pkg/player"
	"github.com/james-see/lyrica/pkg/song"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Lyrica API
// @version 1.0
// @description API for controlling timed key-press song playback
// @host localhost:8080
// @BasePath /api/v1

// maxUpload caps uploaded song files
const maxUpload = 8 << 20

// errOutsideSongDir is returned for song paths that leave the song directory
var errOutsideSongDir = errors.New("path is outside the song directory")

// Server exposes one playback engine over HTTP
type Server struct {
	engine  *player.Engine
	library *song.Library
	logger  *slog.Logger
	songDir string
}

// Option configures a Server
type Option func(*Server)

// WithSongDir limits songs played by path to files under dir. Relative
// paths in requests are taken from dir.
func WithSongDir(dir string) Option {
	return func(s *Server) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		s.songDir = filepath.Clean(dir)
	}
}

// NewServer creates a server for engine, loading songs by path through
// library
func NewServer(engine *player.Engine, library *song.Library, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		library: library,
		logger:  logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/status", s.status)
		v1.POST("/play", s.play)
		v1.POST("/stop", s.stop)
		v1.POST("/pause", s.pause)
		v1.POST("/resume", s.resume)
		v1.GET("/speed", s.getSpeed)
		v1.PUT("/speed", s.setSpeed)
		v1.DELETE("/cache", s.clearCache)
		v1.GET("/layouts", listLayouts)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// Start serves the API on the specified port
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("api listening", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status())
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "lyrica",
	})
}

// status godoc
// @Summary Playback status
// @Description Returns the engine state, progress, speed and statistics
// @Tags playback
// @Produce json
// @Success 200 {object} player.Status
// @Router /api/v1/status [get]
func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

type playRequest struct {
	Path string `json:"path"`
}

// play godoc
// @Summary Start playing a song
// @Description Upload a song file or name a file on the server. Any song already playing is stopped.
// @Tags playback
// @Accept multipart/form-data,json
// @Produce json
// @Param file formData file false "Song file (JSON or MIDI)"
// @Param request body playRequest false "Path of a song on the server"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /api/v1/play [post]
func (s *Server) play(c *gin.Context) {
	sng, err := s.loadSong(c)
	if err != nil {
		var pe *song.ParseError
		switch {
		case errors.Is(err, errOutsideSongDir):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, os.ErrNotExist):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.As(err, &pe):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	if len(sng.Notes) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": player.ErrNoNotes.Error()})
		return
	}

	go func() {
		if err := s.engine.Play(sng); err != nil {
			s.logger.Error("playback failed", "title", sng.Title, "err", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"title": sng.Title,
		"notes": len(sng.Notes),
	})
}

// loadSong reads the song named by a play request
func (s *Server) loadSong(c *gin.Context) (*song.Song, error) {
	if file, header, err := c.Request.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		if len(data) > maxUpload {
			return nil, fmt.Errorf("file exceeds %d bytes", maxUpload)
		}
		return song.Decode(header.Filename, data)
	}

	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		return nil, errors.New("no song given: upload a file or send {\"path\": ...}")
	}
	path, err := s.resolvePath(req.Path)
	if err != nil {
		return nil, err
	}
	return s.library.Parse(path)
}

// resolvePath maps a requested path into the song directory, if one is set
func (s *Server) resolvePath(p string) (string, error) {
	if s.songDir == "" {
		return p, nil
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.songDir, full)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(s.songDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideSongDir, p)
	}
	return full, nil
}

// stop godoc
// @Summary Stop playback
// @Description Stops the current song and releases all keys
// @Tags playback
// @Produce json
// @Success 200 {object} player.Status
// @Router /api/v1/stop [post]
func (s *Server) stop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, s.engine.Status())
}

// pause godoc
// @Summary Pause playback
// @Tags playback
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 409 {object} map[string]string
// @Router /api/v1/pause [post]
func (s *Server) pause(c *gin.Context) {
	if !s.engine.Playing() {
		c.JSON(http.StatusConflict, gin.H{"error": "nothing is playing"})
		return
	}
	s.engine.PauseSignal().Set()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// resume godoc
// @Summary Resume playback
// @Tags playback
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /api/v1/resume [post]
func (s *Server) resume(c *gin.Context) {
	s.engine.PauseSignal().Clear()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// getSpeed godoc
// @Summary Current speed
// @Tags speed
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/speed [get]
func (s *Server) getSpeed(c *gin.Context) {
	c.JSON(http.StatusOK, s.speedBody())
}

func (s *Server) speedBody() gin.H {
	return gin.H{
		"speed":           s.engine.CurrentSpeed(),
		"effective_speed": s.engine.EffectiveSpeed(),
		"min":             player.MinSpeed,
		"max":             player.MaxSpeed,
	}
}

type speedRequest struct {
	Speed interface{} `json:"speed"`
}

// setSpeed godoc
// @Summary Set the playback speed
// @Description Speeds are clamped to [100, 1500]. Invalid values reset the speed to 1000.
// @Tags speed
// @Accept json
// @Produce json
// @Param request body speedRequest true "New speed, number or numeric string"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/speed [put]
func (s *Server) setSpeed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	switch v := req.Speed.(type) {
	case float64:
		s.engine.SetSpeed(v)
	case string:
		s.engine.SetSpeedString(v)
	default:
		s.engine.SetSpeedString(fmt.Sprint(v))
	}
	c.JSON(http.StatusOK, s.speedBody())
}

// clearCache godoc
// @Summary Clear the song cache
// @Tags library
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/v1/cache [delete]
func (s *Server) clearCache(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": s.library.ClearCache()})
}

// listLayouts godoc
// @Summary List keyboard layouts and presets
// @Tags info
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/layouts [get]
func listLayouts(c *gin.Context) {
	var out []map[string]string
	for _, name := range layouts.Names() {
		l, err := layouts.Get(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]string{"name": l.Name(), "description": l.Description()})
	}

	presses := make([]float64, 0, len(player.PressDurationPresets))
	for _, d := range player.PressDurationPresets {
		presses = append(presses, d.Seconds())
	}

	c.JSON(http.StatusOK, gin.H{
		"layouts":       out,
		"speed_presets": player.SpeedPresets,
		"press_presets": presses,
		"formats":       []song.Format{song.FormatJSON, song.FormatMIDI},
		"conversions":   song.GetSupportedConversions(),
	})
}
