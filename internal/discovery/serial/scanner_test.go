package serial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"radial-config/internal/discovery"
	"radial-config/internal/model"
)

func testPorts() []*enumerator.PortDetails {
	return []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1A86", PID: "7523"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "1209", PID: "C0DE", SerialNumber: "R1", Product: "Radial"},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: "1209", PID: "0001"},
	}
}

func TestMatchPortsByVendor(t *testing.T) {
	devices := matchPorts(testPorts(), discovery.Filter{VendorID: "1209"})
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/ttyACM0", devices[0].Port)
	assert.Equal(t, model.ConnectionTypeSerial, devices[0].ConnectionType)
	assert.Equal(t, "R1", devices[0].SerialNumber)
}

func TestMatchPortsByProduct(t *testing.T) {
	devices := matchPorts(testPorts(), discovery.Filter{VendorID: "0x1209", ProductID: "c0de"})
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyACM0", devices[0].Port)
	assert.Equal(t, 1.0, devices[0].Confidence)
}

func TestScan(t *testing.T) {
	scanner := NewScanner(zap.NewNop(), discovery.Filter{VendorID: "1209"})
	scanner.list = func() ([]*enumerator.PortDetails, error) { return testPorts(), nil }

	devices, err := scanner.Scan(t.Context())
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	scanner.list = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no sysfs") }
	_, err = scanner.Scan(t.Context())
	assert.Error(t, err)
}

func TestScannerManagerFirstSerialPort(t *testing.T) {
	scanner := NewScanner(zap.NewNop(), discovery.Filter{VendorID: "1209", ProductID: "0001"})
	scanner.list = func() ([]*enumerator.PortDetails, error) { return testPorts(), nil }

	manager := discovery.NewScannerManager(zap.NewNop())
	manager.RegisterScanner(scanner)

	port, err := manager.FirstSerialPort(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM1", port)
	assert.Equal(t, []string{"serial"}, manager.GetAvailableScanners())

	scanner.filter = discovery.Filter{VendorID: "dead"}
	_, err = manager.FirstSerialPort(t.Context())
	require.ErrorIs(t, err, discovery.ErrNoDevice)
}
