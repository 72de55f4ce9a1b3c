package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	d := New("/dev/null-port", 0, 0)
	assert.Equal(t, DefaultBaudRate, d.baudRate)
	assert.Equal(t, DefaultBufferSize, cap(d.frames))
	assert.False(t, d.IsConnected())
}

func TestSerialCloseWithoutConnect(t *testing.T) {
	d := New("/dev/null-port", 115200, 10)
	assert.NoError(t, d.Close())
	assert.Equal(t, Counters{}, d.Counters())
}

func TestSerialConnectMissingPort(t *testing.T) {
	d := New("/dev/does-not-exist-pipshield", 0, 0)
	err := d.Connect()
	assert.Error(t, err)
	assert.False(t, d.IsConnected())
}
