package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pipshield/pkg/config"
	"github.com/itohio/pipshield/pkg/frame"
	"github.com/itohio/pipshield/pkg/monitor"
	"github.com/itohio/pipshield/pkg/relay"
	"github.com/itohio/pipshield/pkg/scope"
	"github.com/itohio/pipshield/pkg/sweep"
	"github.com/itohio/pipshield/pkg/telemetry"
)

func main() {
	var (
		portFlag          = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag        = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag          = flag.Bool("mock", false, "Use a simulated payload instead of the serial port")
		averageSweepsFlag = flag.Int("average-sweeps", -1, "Number of sweeps to average (0 = disabled, overrides config)")
		captureFlag       = flag.String("capture", "", "Append the raw serial stream to this file")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *averageSweepsFlag >= 0 {
		cfg.Display.AverageSweeps = *averageSweepsFlag
	}

	application := app.NewWithID("com.itohio.pipshield")

	window := application.NewWindow("PIP Shield Ground Station")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		monitor:    monitor.New(cfg),
		window:     window,
		useMock:    *mockFlag,
		capture:    *captureFlag,
	}

	toolbar := createToolbar(state)
	state.scopeWidget = scope.New(cfg)
	state.status = newStatusBar()
	registerScopeUpdates(state)

	window.SetContent(container.NewBorder(
		toolbar,
		state.status.container,
		nil,
		nil,
		state.scopeWidget,
	))
	window.SetOnClosed(func() {
		closeTelemetryChain(state.chain)
	})
	window.ShowAndRun()
}

// telemetryChain tracks the components of the receive chain for graceful shutdown.
type telemetryChain struct {
	receiver      telemetry.Receiver
	captureFile   *os.File
	statusDone    chan struct{} // Closed when the status goroutine exits
	monitorDone   chan struct{} // Closed when the monitor goroutine exits
	relays        []relay.Sink
	relayDone     chan struct{} // Closed when the relay goroutine exits
	frameBranches []<-chan frame.Frame
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	receiver    telemetry.Receiver
	monitor     *monitor.Monitor
	scopeWidget *scope.ScopeWidget
	status      *statusBar
	window      fyne.Window
	connectBtn  *widget.Button
	useMock     bool
	capture     string
	chain       *telemetryChain

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the application toolbar with Connect and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewHBox(connectBtn, settingsBtn)
}

// closeTelemetryChain gracefully closes the receive chain.
// Waits for all goroutines to finish and channels to drain.
func closeTelemetryChain(chain *telemetryChain) {
	if chain == nil {
		return
	}

	// Closing the receiver closes the frames channel, which drains the
	// branches and the converters behind them.
	if chain.receiver != nil {
		chain.receiver.Close()
	}
	if chain.statusDone != nil {
		<-chain.statusDone
	}
	if chain.monitorDone != nil {
		<-chain.monitorDone
	}
	if chain.relayDone != nil {
		<-chain.relayDone
	}
	for _, r := range chain.relays {
		if err := r.Close(); err != nil {
			log.Printf("Error closing relay: %v", err)
		}
	}
	if chain.captureFile != nil {
		chain.captureFile.Close()
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.receiver != nil && state.receiver.IsConnected() {
		closeTelemetryChain(state.chain)
		state.chain = nil
		state.receiver = nil
		state.connectBtn.SetIcon(theme.LoginIcon())
		if state.useMock {
			log.Println("Disconnected from simulated payload")
		} else {
			log.Println("Disconnected from serial port")
		}
		return
	}

	chain := &telemetryChain{}

	var receiver telemetry.Receiver
	if state.useMock {
		receiver = telemetry.NewMock(state.cfg)
		log.Println("Using simulated payload")
	} else {
		serial := telemetry.New(state.cfg.Serial.Port, state.cfg.Serial.BaudRate, telemetry.DefaultBufferSize)
		if state.capture != "" {
			f, err := os.OpenFile(state.capture, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				dialog.ShowError(fmt.Errorf("failed to open capture file: %w", err), state.window)
				return
			}
			serial.Capture(f)
			chain.captureFile = f
		}
		receiver = serial
	}

	if err := receiver.Connect(); err != nil {
		if chain.captureFile != nil {
			chain.captureFile.Close()
		}
		if state.useMock {
			dialog.ShowError(fmt.Errorf("failed to start simulated payload: %w", err), state.window)
		} else {
			dialog.ShowError(fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err), state.window)
		}
		return
	}
	state.receiver = receiver
	chain.receiver = receiver
	state.connectBtn.SetIcon(theme.LogoutIcon())
	if state.useMock {
		log.Printf("Connected to simulated payload")
	} else {
		log.Printf("Connected to serial port: %s", state.cfg.Serial.Port)
	}

	chain.relays = startRelays(state.cfg)

	// One branch per consumer of raw frames.
	branches := 2
	if len(chain.relays) > 0 {
		branches++
	}
	chain.frameBranches = teeChannel(receiver.Frames(), branches)

	state.monitor.ResetShutdown()

	chain.statusDone = make(chan struct{})
	go func(frames <-chan frame.Frame) {
		defer close(chain.statusDone)
		for f := range frames {
			state.status.observe(f)
		}
	}(chain.frameBranches[0])

	// Chain converters: base converter always used, averaging converter conditionally.
	var sweeps <-chan sweep.Sweep
	if state.cfg.Display.AverageSweeps > 0 {
		sweeps = sweep.NewAveragingConverter(state.cfg, state.cfg.Display.AverageSweeps, 500)(chain.frameBranches[1])
	} else {
		sweeps = sweep.NewConverter(state.cfg, 500)(chain.frameBranches[1])
	}

	chain.monitorDone = make(chan struct{})
	go func() {
		defer close(chain.monitorDone)
		state.monitor.ProcessSweeps(sweeps)
	}()

	if len(chain.relays) > 0 {
		chain.relayDone = make(chan struct{})
		go func(frames <-chan frame.Frame) {
			defer close(chain.relayDone)
			relay.Forward(frames, chain.relays...)
		}(chain.frameBranches[2])
	}

	state.chain = chain
}

// registerScopeUpdates registers the monitor callback that redraws the
// scope, throttled to ~60 FPS.
func registerScopeUpdates(state *appState) {
	const updateInterval = 16 * time.Millisecond

	state.monitor.OnUpdate(func(sweeps []sweep.Sweep, intervals []time.Duration, gaps []monitor.Gap) {
		state.updateMu.Lock()
		now := time.Now()
		if now.Sub(state.lastUpdateTime) < updateInterval {
			state.updateMu.Unlock()
			return
		}
		state.lastUpdateTime = now
		state.updateMu.Unlock()

		data := scopeData(state.monitor, sweeps, gaps)
		counters := state.monitor.Counters()
		fyne.Do(func() {
			state.scopeWidget.UpdateData(data)
			state.status.updateLink(counters)
		})
	})
}

// startRelays connects the relay endpoints enabled in the configuration.
// Endpoints that fail to start are logged and skipped.
func startRelays(cfg *config.Config) []relay.Sink {
	var sinks []relay.Sink
	if cfg.Relay.MQTTURL != "" {
		p, err := relay.NewPublisher(cfg.Relay.MQTTURL, cfg.Relay.Topic)
		if err != nil {
			log.Printf("MQTT relay disabled: %v", err)
		} else {
			sinks = append(sinks, p)
		}
	}
	if cfg.Relay.WebsocketAddr != "" {
		h, err := relay.ListenHub(cfg.Relay.WebsocketAddr)
		if err != nil {
			log.Printf("Websocket relay disabled: %v", err)
		} else {
			log.Printf("Websocket relay listening on %s", h.Addr())
			sinks = append(sinks, h)
		}
	}
	return sinks
}

// teeChannel copies every value of in to n new channels. All outputs are
// closed when in is closed.
func teeChannel(in <-chan frame.Frame, n int) []<-chan frame.Frame {
	outs := make([]chan frame.Frame, n)
	result := make([]<-chan frame.Frame, n)
	for i := range outs {
		outs[i] = make(chan frame.Frame, 100)
		result[i] = outs[i]
	}

	go func() {
		defer func() {
			for _, out := range outs {
				close(out)
			}
		}()
		for f := range in {
			for _, out := range outs {
				out <- f
			}
		}
	}()

	return result
}
