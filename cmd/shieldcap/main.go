// Command shieldcap captures, decodes and relays the PIP shield downlink.
//
//	shieldcap capture -p /dev/ttyACM0 -o flight.bin
//	shieldcap decode flight.bin
//	shieldcap relay -mqtt tcp://localhost:1883 -ws :8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/telemetry"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <capture|decode|relay|ports> [flags]\n", os.Args[0])
	os.Exit(2)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if len(os.Args) < 2 {
		usage()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "capture":
		err = runCapture(ctx, args)
	case "decode":
		err = runDecode(args)
	case "relay":
		err = runRelay(ctx, args)
	case "ports":
		err = listPorts()
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// sourceFlags are the flags shared by commands that read the live link.
type sourceFlags struct {
	config string
	port   string
	baud   int
	mock   bool
}

func (s *sourceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.config, "config", "config.yaml", "Configuration file path")
	fs.StringVar(&s.port, "p", "", "Serial port override")
	fs.IntVar(&s.baud, "b", 0, "Baud rate override")
	fs.BoolVar(&s.mock, "mock", false, "Use a simulated payload instead of the serial port")
}

// load returns the configuration with command line overrides applied.
func (s *sourceFlags) load() (*config.Config, error) {
	cfg, err := config.Load(s.config)
	if err != nil {
		return nil, err
	}
	if s.port != "" {
		cfg.Serial.Port = s.port
	}
	if s.baud > 0 {
		cfg.Serial.BaudRate = s.baud
	}
	return cfg, nil
}

func listPorts() error {
	ports, err := telemetry.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p.Description)
	}
	return nil
}
