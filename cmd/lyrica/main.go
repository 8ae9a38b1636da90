// Package main is the entry point for the lyrica CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/james-see/lyrica/pkg/api"
	"github.com/james-see/lyrica/pkg/config"
	"github.com/james-see/lyrica/pkg/hotkey"
	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/keymap"
	"github.com/james-see/lyrica/pkg/keymap/layouts"
	"github.com/james-see/lyrica/pkg/player"
	"github.com/james-see/lyrica/pkg/song"
	"github.com/james-see/lyrica/pkg/tui"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	layoutName string
	pauseKey   string
	speed      float64
	hold       time.Duration
	ramping    bool
	backend    string
	midiOut    string
	serialPort string
	baudRate   int
	outputFile string
	serverPort int
	songDir    string
	debug      bool
)

var logger *slog.Logger

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lyrica",
	Short: "Play note sheets as timed key presses",
	Long: `lyrica plays song sheets by pressing and releasing keys at the times
their notes call for. Playback can be paused, resumed, stopped and sped up
or slowed down while it runs.

Examples:
  lyrica play song.json
  lyrica play song.json --speed 1200 --keyboard midi --midi-out take.mid
  lyrica inspect song.mid
  lyrica convert song.mid -o song.json
  lyrica tui
  lyrica serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
	SilenceUsage: true,
}

var playCmd = &cobra.Command{
	Use:   "play <song>",
	Short: "Play a song",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <song>",
	Short: "Show what a song file contains",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert a song between JSON and MIDI",
	Long:  `Reads a JSON or MIDI song and writes it in the format given by the output file extension.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var layoutsCmd = &cobra.Command{
	Use:   "layouts",
	Short: "List keyboard layouts",
	RunE:  runLayouts,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "lyrica.toml", "Config file")
	pf.StringVarP(&layoutName, "layout", "l", "", "Keyboard layout (qwerty, qwertz, azerty, dvorak)")
	pf.StringVar(&pauseKey, "pause-key", "", "Key that toggles pause")
	pf.Float64VarP(&speed, "speed", "s", player.DefaultSpeed, "Playback speed (100-1500, 1000 is normal)")
	pf.DurationVar(&hold, "hold", 0, "How long each key is held (e.g. 248ms)")
	pf.BoolVar(&ramping, "ramping", false, "Ease the speed in and out")
	pf.StringVarP(&backend, "keyboard", "k", "tone", "Key output (tone, midi, serial, recorder)")
	pf.StringVar(&midiOut, "midi-out", "", "File the midi keyboard records to")
	pf.StringVar(&serialPort, "serial-port", "", "Serial device for the serial keyboard")
	pf.IntVar(&baudRate, "baud", 115200, "Serial baud rate")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")

	// convert command
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (required)")
	_ = convertCmd.MarkFlagRequired("output")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")
	serveCmd.Flags().StringVar(&songDir, "songs", ".", "Directory songs may be played from by path")

	// Add commands
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(layoutsCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadSettings reads the config file and applies any flags given on the
// command line over it
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return s, err
	}
	flags := cmd.Flags()
	if flags.Changed("speed") {
		v, ok := player.NormalizeSpeed(speed)
		if !ok {
			logger.Warn("invalid speed, using default", "value", speed, "speed", v)
		}
		s.Player.Speed = v
	}
	if flags.Changed("hold") {
		s.Player.PressDuration = hold
	}
	if flags.Changed("ramping") {
		s.Player.EnableRamping = ramping
	}
	if flags.Changed("layout") {
		s.Layout = layoutName
	}
	if flags.Changed("pause-key") {
		s.PauseKey = pauseKey
	}
	if err := s.Player.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// output is a keyboard backend and what to do with it when playback ends
type output struct {
	kb    keyboard.Keyboard
	close func() error
}

func openKeyboard(km *keymap.KeyMap) (output, error) {
	switch strings.ToLower(backend) {
	case "tone":
		t := keyboard.NewTone(km.Pitch)
		if err := t.Initialize(); err != nil {
			return output{}, err
		}
		return output{kb: t, close: func() error { t.Cleanup(); return nil }}, nil
	case "midi":
		if midiOut == "" {
			return output{}, errors.New("--midi-out is required for the midi keyboard")
		}
		m := keyboard.NewMIDIRecorder(km.Pitch)
		return output{kb: m, close: func() error {
			if m.Len() == 0 {
				logger.Warn("nothing recorded, midi file not written")
				return nil
			}
			if err := m.Save(midiOut); err != nil {
				return err
			}
			logger.Info("recording saved", "path", midiOut, "events", m.Len())
			return nil
		}}, nil
	case "serial":
		if serialPort == "" {
			return output{}, errors.New("--serial-port is required for the serial keyboard")
		}
		s, err := keyboard.OpenSerial(serialPort, baudRate, logger)
		if err != nil {
			return output{}, err
		}
		return output{kb: s, close: s.Close}, nil
	case "recorder":
		r := keyboard.NewRecorder()
		return output{kb: r, close: func() error {
			logger.Info("key events recorded", "events", len(r.Events()))
			return nil
		}}, nil
	default:
		return output{}, fmt.Errorf("unknown keyboard %q", backend)
	}
}

// newEngine builds an engine from the config file, flags and the selected
// keyboard. The returned func closes the engine and the keyboard.
func newEngine(cmd *cobra.Command) (*player.Engine, config.Settings, func(), error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, settings, nil, err
	}
	km, err := settings.KeyMap()
	if err != nil {
		return nil, settings, nil, err
	}
	out, err := openKeyboard(km)
	if err != nil {
		return nil, settings, nil, err
	}
	engine, err := player.New(settings.Player, km, out.kb, nil, player.WithLogger(logger))
	if err != nil {
		_ = out.close()
		return nil, settings, nil, err
	}
	cleanup := func() {
		engine.Close()
		if err := out.close(); err != nil {
			logger.Error("closing keyboard failed", "err", err)
		}
	}
	return engine, settings, cleanup, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := song.NewLibrary(logger).Parse(args[0])
	if err != nil {
		return err
	}

	engine, settings, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		engine.Stop()
	}()

	if hotkey.IsTerminal(int(os.Stdin.Fd())) {
		l := hotkey.New(settings.PauseKey, hotkeyHandler(engine), logger)
		if err := l.Start(); err != nil {
			logger.Warn("hotkeys unavailable", "err", err)
		} else {
			defer l.Stop()
			fmt.Printf("Playing %s  [%s/space pause, +/- speed, q stop]\r\n", s.Title, settings.PauseKey)
		}
	}

	if err := engine.Play(s); err != nil {
		return err
	}

	st := engine.Status()
	fmt.Printf("%s: %d notes played, %d skipped, paused %d times\r\n",
		st.State, st.Stats.NotesPlayed, st.Stats.NotesSkipped, st.Stats.PauseCount)
	return nil
}

// hotkeyHandler applies terminal hotkeys to engine
func hotkeyHandler(engine *player.Engine) func(hotkey.Action) {
	return func(a hotkey.Action) {
		switch a {
		case hotkey.ActionPause:
			paused := engine.PauseSignal().Toggle()
			logger.Info("pause toggled", "paused", paused)
		case hotkey.ActionStop:
			go engine.Stop()
		case hotkey.ActionFaster:
			engine.SetSpeed(engine.CurrentSpeed() + 100)
			logger.Info("speed", "speed", engine.CurrentSpeed())
		case hotkey.ActionSlower:
			engine.SetSpeed(engine.CurrentSpeed() - 100)
			logger.Info("speed", "speed", engine.CurrentSpeed())
		}
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	s, err := song.NewLibrary(logger).Parse(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Title:    %s\n", s.Title)
	fmt.Printf("Format:   %s\n", s.Format)
	if s.BPM > 0 {
		fmt.Printf("BPM:      %d\n", s.BPM)
	}
	fmt.Printf("Notes:    %d (%d malformed)\n", len(s.Notes), len(s.Notes)-s.ValidNotes())
	fmt.Printf("Duration: %s\n", time.Duration(s.Duration())*time.Millisecond)
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	s, err := song.Decode(filepath.Base(input), data)
	if err != nil {
		return err
	}

	var result []byte
	switch song.DetectFormat(outputFile) {
	case song.FormatMIDI:
		d := hold
		if d <= 0 {
			d = player.DefaultConfig().PressDuration
		}
		result, err = song.GenerateMIDI(s, d)
	case song.FormatJSON:
		result, err = song.GenerateJSON(s)
	default:
		return fmt.Errorf("cannot tell output format from %q", outputFile)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputFile, result, 0644); err != nil {
		return err
	}
	fmt.Printf("Converted %s -> %s\n", input, outputFile)
	return nil
}

func runLayouts(cmd *cobra.Command, args []string) error {
	for _, name := range layouts.Names() {
		l, err := layouts.Get(name)
		if err != nil {
			return err
		}
		keys := l.Keys()
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, string(k))
		}
		fmt.Printf("%-8s %s\n         %s\n", l.Name(), l.Description(), strings.Join(parts, " "))
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	// The terminal belongs to the UI; logs go to a file in debug mode and
	// are dropped otherwise.
	w := io.Discard
	if debug {
		f, err := os.OpenFile("lyrica-tui.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))

	engine, settings, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	return tui.Run(engine, song.NewLibrary(logger), settings.PauseKey)
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, _, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Starting API server on port %d...\n", serverPort)
	srv := api.NewServer(engine, song.NewLibrary(logger), logger, api.WithSongDir(songDir))
	return srv.Start(serverPort)
}
