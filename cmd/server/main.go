// Package main is the entry point for the lyrica API server
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/james-see/lyrica/pkg/api"
	"github.com/james-see/lyrica/pkg/config"
	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/player"
	"github.com/james-see/lyrica/pkg/song"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	configPath := flag.String("config", "lyrica.toml", "Config file")
	songDir := flag.String("songs", ".", "Directory songs may be played from by path")
	serialPort := flag.String("serial", "", "Serial device to send key presses to")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*port, *configPath, *songDir, *serialPort, *baud, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(port int, configPath, songDir, serialPort string, baud int, logger *slog.Logger) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	km, err := settings.KeyMap()
	if err != nil {
		return err
	}

	var kb keyboard.Keyboard
	if serialPort != "" {
		s, err := keyboard.OpenSerial(serialPort, baud, logger)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		kb = s
	} else {
		logger.Warn("no serial device given, key presses are only recorded")
		kb = keyboard.NewRecorder()
	}

	engine, err := player.New(settings.Player, km, kb, nil, player.WithLogger(logger))
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Printf("Starting lyrica API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)
	srv := api.NewServer(engine, song.NewLibrary(logger), logger, api.WithSongDir(songDir))
	return srv.Start(port)
}
