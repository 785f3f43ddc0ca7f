// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"eegstream/cmd"
	"eegstream/internal/config"
	"eegstream/internal/eeg"
	"eegstream/internal/engine"
	"eegstream/internal/export"
	"eegstream/internal/log"
	"eegstream/internal/source"
	"eegstream/internal/transport"
	"eegstream/internal/transport/udp"
	"eegstream/pkg/build"
)

// main runs in three phases:
//
//  1. Startup: build information, command line and configuration, then the
//     source, coordinator, transports and recorder.
//  2. Streaming: samples are pumped into the coordinator until the source
//     ends or a termination signal arrives.
//  3. Shutdown: the coordinator disconnects, which closes every
//     subscription, then consumers are drained and closed.
func main() {
	defer log.Sync()

	if err := build.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	switch opts.Command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags())
		return
	case cmd.CommandDevices:
		listDevices()
		return
	}
	if opts.Config == nil {
		return // help or --version was printed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts.Config); err != nil {
		log.Fatalf("%v", err)
	}
}

func listDevices() {
	for _, d := range eeg.KnownDevices() {
		if n := d.MaxChannels(); n > 0 {
			fmt.Printf("%-32s %-24s %2d channels: %v\n", d.Manufacturer, d.Model, n, d.Labels(n))
			continue
		}
		fmt.Printf("%-32s %-24s generic labels\n", d.Manufacturer, d.Model)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}

	stream, err := cfg.StreamInfo()
	if err != nil {
		return err
	}
	src, err := openSource(cfg, stream)
	if err != nil {
		return err
	}
	defer src.Close()

	if cfg.Source.Kind == config.SourceEDF && cfg.Source.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Source.Duration)
		defer cancel()
	}

	ec, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	coord, err := engine.Connect(stream, ec)
	if err != nil {
		return err
	}
	defer coord.Disconnect()

	transports, err := openTransports(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range transports {
			if err := t.Close(); err != nil {
				log.Warnf("Transport: close %T: %v", t, err)
			}
		}
	}()

	// Everything that can fail is opened before the first consumer starts.
	var rec *export.EDFRecorder
	if cfg.Export.EDFPath != "" {
		rec, err = export.CreateEDF(cfg.Export.EDFPath, stream, cfg.RecorderConfig())
		if err != nil {
			return err
		}
	}

	// Consumers subscribe before the first sample so nothing is missed.
	var consumers sync.WaitGroup
	if len(transports) > 0 {
		fwd := transport.NewForwarder(coord, transport.ForwardOptions{
			Raw:         cfg.Transport.ForwardRaw,
			Filtered:    cfg.Transport.ForwardFiltered,
			SampleEvery: cfg.Transport.SampleEvery,
		}, transports...)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			fwd.Run(context.Background())
		}()
	}
	if rec != nil {
		sub := coord.SubscribeFiltered()
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := rec.Run(context.Background(), sub.C()); err != nil {
				log.Errorf("Export: %v", err)
			}
			sub.Unsubscribe()
			log.Infof("Export: wrote %d records to %s", rec.Records(), cfg.Export.EDFPath)
		}()
	}

	if err := coord.Start(); err != nil {
		coord.Disconnect()
		consumers.Wait()
		return err
	}
	log.Infof("Streaming %q: %d channels at %.1f Hz (%s %s)",
		stream.Name, stream.ChannelCount, stream.SampleRate, stream.Manufacturer, stream.Model)

	err = engine.Pump(ctx, src, coord)
	switch {
	case errors.Is(err, eeg.ErrUpstreamDisconnect):
		log.Infof("Source ended")
		err = nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Infof("Shutting down")
		err = nil
	}

	coord.Disconnect()
	consumers.Wait()

	st := coord.Stats()
	log.Infof("Ingested %d samples (%d rejected, %d clipped), %d analysis cycles, %d events dropped",
		st.Ingested, st.Rejected, st.Clipped, st.Cycles, st.Dropped)
	return err
}

func openSource(cfg *config.Config, stream eeg.Stream) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceEDF:
		return source.OpenEDF(cfg.Source.Path, stream, cfg.Source.Realtime)
	default:
		sc, err := cfg.SyntheticConfig()
		if err != nil {
			return nil, err
		}
		return source.NewSynthetic(stream, sc)
	}
}

// openTransports creates the configured consumers. On error the ones
// already opened are closed.
func openTransports(cfg *config.Config) (ts []transport.Transport, err error) {
	defer func() {
		if err != nil {
			for _, t := range ts {
				_ = t.Close()
			}
			ts = nil
		}
	}()

	tc := cfg.Transport
	if tc.LogEvents {
		ts = append(ts, transport.NewLoggingTransport())
	}
	if tc.WebSocketAddr != "" {
		ts = append(ts, transport.NewWebSocketTransport(tc.WebSocketAddr))
	}
	if tc.UDPEnabled {
		sender, err := udp.NewUDPSender(tc.UDPTargetAddress)
		if err != nil {
			return ts, err
		}
		pub, err := udp.NewUDPPublisher(tc.UDPSendInterval, sender)
		if err != nil {
			_ = sender.Close()
			return ts, err
		}
		pub.Start()
		ts = append(ts, pub)
	}
	if len(tc.KafkaBrokers) > 0 {
		kt, err := transport.NewKafkaTransport(tc.KafkaBrokers, tc.KafkaTopic)
		if err != nil {
			return ts, err
		}
		ts = append(ts, kt)
	}
	return ts, nil
}
