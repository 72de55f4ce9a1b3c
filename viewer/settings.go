package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/pipshield/pkg/monitor"
	"github.com/itohio/pipshield/pkg/telemetry"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createSweepTab(state),
		createDisplayTab(state),
		createRelayTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) bool {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

func connected(state *appState) bool {
	return state.receiver != nil && state.receiver.IsConnected()
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := telemetry.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			portOptions = append(portOptions, port.Description)
			portMap[port.Description] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			selectedPort := portMap[portSelect.Selected]
			if selectedPort == "" {
				selectedPort = portSelect.Selected
			}
			baud := state.cfg.Serial.BaudRate
			if b, err := strconv.Atoi(baudEntry.Text); err == nil && b > 0 {
				baud = b
			}

			changed := state.cfg.Serial.Port != selectedPort || state.cfg.Serial.BaudRate != baud
			wasConnected := connected(state)

			state.cfg.Serial.Port = selectedPort
			state.cfg.Serial.BaudRate = baud
			if !saveConfig(state) {
				return
			}

			// Reconnect so the new port takes effect.
			if changed && wasConnected && !state.useMock {
				handleConnect(state)
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createSweepTab creates the sweep conversion tab.
func createSweepTab(state *appState) *container.TabItem {
	minEntry := widget.NewEntry()
	minEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Sweep.Min))
	maxEntry := widget.NewEntry()
	maxEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Sweep.Max))
	dacEntry := widget.NewEntry()
	dacEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Sweep.DACVRef))
	adcEntry := widget.NewEntry()
	adcEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Sweep.ADCVRef))
	bitsEntry := widget.NewEntry()
	bitsEntry.SetText(strconv.Itoa(state.cfg.Sweep.ADCBits))
	gainEntry := widget.NewEntry()
	gainEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Sweep.BiasGain))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "First DAC code", Widget: minEntry},
			{Text: "Last DAC code", Widget: maxEntry},
			{Text: "DAC VRef (V)", Widget: dacEntry},
			{Text: "ADC VRef (V)", Widget: adcEntry},
			{Text: "ADC bits", Widget: bitsEntry},
			{Text: "Bias gain (V/V)", Widget: gainEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(minEntry.Text, 64); err == nil {
				state.cfg.Sweep.Min = v
			}
			if v, err := strconv.ParseFloat(maxEntry.Text, 64); err == nil {
				state.cfg.Sweep.Max = v
			}
			if v, err := strconv.ParseFloat(dacEntry.Text, 64); err == nil {
				state.cfg.Sweep.DACVRef = v
			}
			if v, err := strconv.ParseFloat(adcEntry.Text, 64); err == nil {
				state.cfg.Sweep.ADCVRef = v
			}
			if v, err := strconv.Atoi(bitsEntry.Text); err == nil {
				state.cfg.Sweep.ADCBits = v
			}
			if v, err := strconv.ParseFloat(gainEntry.Text, 64); err == nil {
				state.cfg.Sweep.BiasGain = v
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Sweep", form)
}

// createDisplayTab creates the Display configuration tab. Changes apply
// on the next connect.
func createDisplayTab(state *appState) *container.TabItem {
	windowEntry := widget.NewEntry()
	windowEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Display.WindowSeconds))
	averageEntry := widget.NewEntry()
	averageEntry.SetText(strconv.Itoa(state.cfg.Display.AverageSweeps))
	toleranceEntry := widget.NewEntry()
	toleranceEntry.SetText(state.cfg.Display.GapTolerance.String())
	pointsEntry := widget.NewEntry()
	pointsEntry.SetText(strconv.Itoa(state.cfg.Display.MaxPoints))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds)", Widget: windowEntry},
			{Text: "Average sweeps (0=disabled)", Widget: averageEntry},
			{Text: "Gap tolerance", Widget: toleranceEntry},
			{Text: "History points", Widget: pointsEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(windowEntry.Text, 64); err == nil {
				state.cfg.Display.WindowSeconds = v
			}
			if v, err := strconv.Atoi(averageEntry.Text); err == nil {
				state.cfg.Display.AverageSweeps = v
			}
			if v, err := time.ParseDuration(toleranceEntry.Text); err == nil {
				state.cfg.Display.GapTolerance = v
			}
			if v, err := strconv.Atoi(pointsEntry.Text); err == nil {
				state.cfg.Display.MaxPoints = v
			}
			if !saveConfig(state) {
				return
			}
			if !connected(state) {
				state.monitor = monitor.New(state.cfg)
				registerScopeUpdates(state)
			}
		},
	}

	return container.NewTabItem("Display", form)
}

// createRelayTab creates the Relay configuration tab.
func createRelayTab(state *appState) *container.TabItem {
	mqttEntry := widget.NewEntry()
	mqttEntry.SetPlaceHolder("tcp://localhost:1883")
	mqttEntry.SetText(state.cfg.Relay.MQTTURL)
	topicEntry := widget.NewEntry()
	topicEntry.SetText(state.cfg.Relay.Topic)
	wsEntry := widget.NewEntry()
	wsEntry.SetPlaceHolder(":8080")
	wsEntry.SetText(state.cfg.Relay.WebsocketAddr)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "MQTT broker", Widget: mqttEntry},
			{Text: "MQTT topic", Widget: topicEntry},
			{Text: "Websocket address", Widget: wsEntry},
		},
		OnSubmit: func() {
			state.cfg.Relay.MQTTURL = mqttEntry.Text
			if topicEntry.Text != "" {
				state.cfg.Relay.Topic = topicEntry.Text
			}
			state.cfg.Relay.WebsocketAddr = wsEntry.Text
			saveConfig(state)
		},
	}

	return container.NewTabItem("Relay", form)
}

// createMockTab creates the simulated payload configuration tab.
func createMockTab(state *appState) *container.TabItem {
	syncPeriodEntry := widget.NewEntry()
	syncPeriodEntry.SetText(state.cfg.Mock.SyncPeriod.String())
	syncJitterEntry := widget.NewEntry()
	syncJitterEntry.SetText(state.cfg.Mock.SyncJitter.String())
	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.4f", state.cfg.Mock.NoiseLevel))
	teEntry := widget.NewEntry()
	teEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.ElectronTemp))
	vfEntry := widget.NewEntry()
	vfEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.FloatingBias))
	stallEntry := widget.NewEntry()
	stallEntry.SetText(state.cfg.Mock.ChipStallAfter.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sync period (0 = none)", Widget: syncPeriodEntry},
			{Text: "Sync jitter", Widget: syncJitterEntry},
			{Text: "Noise level (V)", Widget: noiseEntry},
			{Text: "Electron temperature (eV)", Widget: teEntry},
			{Text: "Floating bias (V)", Widget: vfEntry},
			{Text: "EEPROM stall after (0 = never)", Widget: stallEntry},
		},
		OnSubmit: func() {
			if v, err := time.ParseDuration(syncPeriodEntry.Text); err == nil {
				state.cfg.Mock.SyncPeriod = v
			}
			if v, err := time.ParseDuration(syncJitterEntry.Text); err == nil {
				state.cfg.Mock.SyncJitter = v
			}
			if v, err := strconv.ParseFloat(noiseEntry.Text, 64); err == nil {
				state.cfg.Mock.NoiseLevel = v
			}
			if v, err := strconv.ParseFloat(teEntry.Text, 64); err == nil {
				state.cfg.Mock.ElectronTemp = v
			}
			if v, err := strconv.ParseFloat(vfEntry.Text, 64); err == nil {
				state.cfg.Mock.FloatingBias = v
			}
			if v, err := time.ParseDuration(stallEntry.Text); err == nil {
				state.cfg.Mock.ChipStallAfter = v
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Mock", form)
}
