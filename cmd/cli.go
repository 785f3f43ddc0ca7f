// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"time"

	"eegstream/internal/config"
	"eegstream/pkg/build"

	"github.com/spf13/cobra"
)

// One-off commands that do not start the pipeline.
const (
	CommandVersion = "version"
	CommandDevices = "devices"
)

// Options is the result of parsing the command line.
type Options struct {
	Config  *config.Config
	Command string // empty to run the pipeline
}

type flagValues struct {
	configPath   string
	verbose      bool
	source       string
	edf          string
	ws           string
	udp          string
	kafkaBrokers string
	kafkaTopic   string
	record       string
	duration     time.Duration
}

// ParseArgs parses args (without the program name), loads the configuration
// file and applies the flags that were set on top of it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(fv.configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg, fv); err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandVersion,
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandVersion
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandDevices,
		Short: "List known EEG headsets and their channel layouts",
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandDevices
		},
	})

	flags := rootCmd.Flags()
	flags.StringVarP(&fv.configPath, "config", "c", "", "Path to a YAML configuration file (default ./config.yaml if present)")
	flags.BoolVarP(&fv.verbose, "verbose", "v", false, "Show debug output")
	flags.StringVarP(&fv.source, "source", "s", "", "Sample source: synthetic or edf")
	flags.StringVar(&fv.edf, "edf", "", "EDF file to replay (implies --source edf)")
	flags.StringVar(&fv.ws, "ws", "", "WebSocket listen address, empty string disables")
	flags.StringVar(&fv.udp, "udp", "", "Send band power packets to this UDP host:port")
	flags.StringVar(&fv.kafkaBrokers, "kafka-brokers", "", "Comma separated Kafka brokers")
	flags.StringVar(&fv.kafkaTopic, "kafka-topic", "", "Kafka topic for events")
	flags.StringVarP(&fv.record, "record", "r", "", "Record the filtered stream to this EDF file")
	flags.DurationVarP(&fv.duration, "duration", "d", 0, "Stop after this much signal (0 runs until interrupted)")

	// cobra reads os.Args when given nil.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, fv flagValues) error {
	changed := cmd.Flags().Changed

	if fv.verbose {
		cfg.LogLevel = "debug"
	}
	if changed("source") {
		cfg.Source.Kind = fv.source
	}
	if changed("edf") {
		cfg.Source.Kind = config.SourceEDF
		cfg.Source.Path = fv.edf
	}
	if changed("ws") {
		cfg.Transport.WebSocketAddr = fv.ws
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = fv.udp != ""
		cfg.Transport.UDPTargetAddress = fv.udp
	}
	if changed("kafka-brokers") {
		cfg.Transport.KafkaBrokers = config.SplitList(fv.kafkaBrokers)
	}
	if changed("kafka-topic") {
		cfg.Transport.KafkaTopic = fv.kafkaTopic
	}
	if changed("record") {
		cfg.Export.EDFPath = fv.record
	}
	if changed("duration") {
		if fv.duration < 0 {
			return errors.New("--duration must not be negative")
		}
		cfg.Source.Duration = fv.duration
	}
	return cfg.Validate()
}
