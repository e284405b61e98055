package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"midiseq/config"
	"midiseq/debug"
	"midiseq/midi"
	"midiseq/mux"
	"midiseq/sequencer"
	"midiseq/theme"
	"midiseq/track"
	"midiseq/tui"
)

var (
	configPath string
	logLevel   string
	debugFile  bool
	songPath   string
	palette    string
)

var rootCmd = &cobra.Command{
	Use:   "midiseq",
	Short: "Real-time MIDI sequencer",
	Long: `midiseq routes MIDI input through a normalizer and a filter to the
outputs, plays standard MIDI files and records what is played.

Devices, tempo and controllers are read from ~/.config/midiseq/config.yaml
(or config.yml, config.json, /etc/midiseq/config.yaml).`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine with a command prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, err := setup(true)
		if err != nil {
			return err
		}
		defer m.Close()
		m.Mux().HandleSignals()
		prompt := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		return m.Console(os.Stdout, prompt)
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start the engine with a live view",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, _, err := setup(false)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- m.Run(ctx) }()

		scanner := midi.NewScanner()
		go scanner.Run(ctx)

		th := theme.New(nil)
		if palette != "" {
			p, err := theme.LoadGPL(palette)
			if err != nil {
				cancel()
				<-done
				m.Close()
				return err
			}
			th = theme.New(p)
		}

		p := tea.NewProgram(tui.NewModel(m, scanner, th), tea.WithAltScreen())
		_, err = p.Run()
		cancel()
		<-done
		return errors.Join(err, m.Close())
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the system MIDI ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := midi.ListPorts(midi.DefaultScanTimeout)
		if err != nil {
			return err
		}
		fmt.Println("inputs:")
		for i, p := range ports.In {
			fmt.Printf("  %d: %s\n", i, p)
		}
		fmt.Println("outputs:")
		for i, p := range ports.Out {
			fmt.Printf("  %d: %s\n", i, p)
		}
		return nil
	},
}

// setup loads the configuration and starts an engine with the configured
// devices. With console set, the engine reads commands from stdin.
func setup(console bool) (*sequencer.Manager, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if debugFile {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config %s: %w", cfg.Path(), err)
	}
	if err := debug.Init(cfg.LogLevel, os.Stderr); err != nil {
		return nil, nil, err
	}
	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			return nil, nil, err
		}
	}
	ctls, err := cfg.CtlTable()
	if err != nil {
		return nil, nil, err
	}

	opts := sequencer.Options{
		Ctls:     ctls,
		Tempo:    cfg.Tempo,
		TPB:      cfg.TPB,
		Throttle: cfg.Throttle,
		Output:   cfg.Output,
		Log:      debug.Logger(),
	}
	if console {
		opts.Mux.Console = mux.NewConsole(int(os.Stdin.Fd()))
	}
	m, err := sequencer.NewManager(opts)
	if err != nil {
		return nil, nil, err
	}

	devs, err := cfg.OpenDevices()
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	for _, d := range devs {
		m.AddDevice(d)
	}

	if songPath != "" {
		s, err := track.ReadSMFFile(songPath, cfg.Output, ctls)
		if err != nil {
			m.Close()
			return nil, nil, err
		}
		m.Load(s)
	}
	return m, cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&debugFile, "debug", false, "write a trace to "+debug.DefaultPath())

	runCmd.Flags().StringVarP(&songPath, "song", "s", "", "standard MIDI file to play")
	monitorCmd.Flags().StringVarP(&songPath, "song", "s", "", "standard MIDI file to play")
	monitorCmd.Flags().StringVar(&palette, "palette", "", "GIMP palette file for the live view")

	rootCmd.AddCommand(runCmd, monitorCmd, portsCmd, frameCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
