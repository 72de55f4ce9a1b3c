package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/relay"
)

// runRelay forwards frames from the live link, or from a capture file, to
// MQTT and websocket clients.
func runRelay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	var src sourceFlags
	src.register(fs)
	mqttFlag := fs.String("mqtt", "", "MQTT broker URL (overrides config)")
	topicFlag := fs.String("topic", "", "MQTT topic prefix (overrides config)")
	wsFlag := fs.String("ws", "", "Websocket listen address (overrides config)")
	inFlag := fs.String("i", "", "Replay a capture file instead of the live link")
	realtime := fs.Bool("realtime", false, "Pace capture replay by payload timestamps")
	fs.Parse(args)

	cfg, err := src.load()
	if err != nil {
		return err
	}
	if *mqttFlag != "" {
		cfg.Relay.MQTTURL = *mqttFlag
	}
	if *topicFlag != "" {
		cfg.Relay.Topic = *topicFlag
	}
	if *wsFlag != "" {
		cfg.Relay.WebsocketAddr = *wsFlag
	}

	var sinks []relay.Sink
	if cfg.Relay.MQTTURL != "" {
		p, err := relay.NewPublisher(cfg.Relay.MQTTURL, cfg.Relay.Topic)
		if err != nil {
			return err
		}
		log.Printf("Publishing to %s as %s", cfg.Relay.MQTTURL, relay.ClientID())
		sinks = append(sinks, p)
	}
	if cfg.Relay.WebsocketAddr != "" {
		h, err := relay.ListenHub(cfg.Relay.WebsocketAddr)
		if err != nil {
			closeAll(sinks)
			return err
		}
		log.Printf("Websocket clients on %s", h.Addr())
		sinks = append(sinks, h)
	}
	if len(sinks) == 0 {
		return fmt.Errorf("no relay endpoint configured (use -mqtt or -ws)")
	}
	defer closeAll(sinks)

	frames := make(chan frame.Frame, 100)
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Forward(frames, sinks...)
	}()

	if *inFlag != "" {
		err = replayFile(ctx, *inFlag, *realtime, frames)
	} else {
		err = relayLive(ctx, cfg, src.mock, frames)
	}
	close(frames)
	<-done
	return err
}

func relayLive(ctx context.Context, cfg *config.Config, mock bool, out chan<- frame.Frame) error {
	rx, err := connect(cfg, mock, nil)
	if err != nil {
		return err
	}
	defer rx.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-rx.Frames():
			if !ok {
				return fmt.Errorf("link closed")
			}
			out <- f
		}
	}
}

// replayFile sends the frames of a capture to out. With realtime set,
// frames are spaced by the difference of their payload timestamps.
func replayFile(ctx context.Context, name string, realtime bool, out chan<- frame.Frame) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	r := frame.NewReader(f)
	var last uint32
	first := true
	for {
		fr, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		// Replayed frames carry old timestamps and do not set the pace.
		if realtime && !fr.Kind.IsReplay() {
			if !first {
				if d := time.Duration(fr.Timestamp-last) * time.Microsecond; d < time.Second {
					select {
					case <-time.After(d):
					case <-ctx.Done():
						return nil
					}
				}
			}
			last, first = fr.Timestamp, false
		}

		select {
		case out <- fr:
		case <-ctx.Done():
			return nil
		}
	}
}

func closeAll(sinks []relay.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("Error closing relay: %v", err)
		}
	}
}
