package serial

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func TestPacketTimeout(t *testing.T) {
	// 64 bytes at 9600 baud with 10% margin
	assert.InDelta(t, 7333*time.Microsecond, PacketTimeout(64, 9600), float64(time.Microsecond))
	assert.Less(t, PacketTimeout(64, 115200), PacketTimeout(64, 9600))
	assert.Zero(t, PacketTimeout(64, 0))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM1")
	assert.Equal(t, "/dev/ttyACM1", cfg.Device)
	assert.Equal(t, DefaultBaud, cfg.Baud)
	assert.Equal(t, DriverBugST, cfg.Driver)
}

func TestEffectiveTimeout(t *testing.T) {
	packet := PacketTimeout(64, DefaultBaud)

	assert.Equal(t, packet, DefaultDriver.EffectiveTimeout(packet))
	assert.Equal(t, packet, Driver("").EffectiveTimeout(packet))
	assert.Equal(t, 3*time.Millisecond, DriverBugST.EffectiveTimeout(3*time.Millisecond))

	// tarm only has tenths of a second
	assert.Equal(t, 100*time.Millisecond, DriverTarm.EffectiveTimeout(packet))
	assert.Equal(t, 200*time.Millisecond, DriverTarm.EffectiveTimeout(250*time.Millisecond))
	assert.Equal(t, 25500*time.Millisecond, DriverTarm.EffectiveTimeout(time.Minute))

	for _, d := range []Driver{DriverTarm, DriverBugST} {
		assert.Zero(t, d.EffectiveTimeout(0), "driver %s", d)
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)

	_, err = Open(&Config{Device: "/dev/null", Driver: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownDriver)

	for _, driver := range []Driver{DriverTarm, DriverBugST} {
		_, err = Open(&Config{Device: "/dev/stackctl-does-not-exist", Baud: 9600, Driver: driver})
		assert.Error(t, err, "driver %s", driver)
	}
}

func TestMockPortReads(t *testing.T) {
	m := NewMockPort()
	m.Feed([]byte{1, 2, 3}, []byte{4})

	waiting, err := m.InWaiting()
	require.NoError(t, err)
	assert.Equal(t, 4, waiting)

	buf := make([]byte, 2)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2}, buf)

	// remainder of the first chunk comes before the next chunk
	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, buf[:n])

	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, buf[:n])

	// empty queue behaves like a timeout
	n, err = m.Read(buf)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestMockPortFailures(t *testing.T) {
	m := NewMockPort()
	boom := errors.New("boom")

	m.FailReads(boom)
	_, err := m.Read(make([]byte, 1))
	assert.ErrorIs(t, err, boom)
	_, err = m.Read(make([]byte, 1))
	assert.NoError(t, err, "read failure is one-shot")

	_, err = m.Write([]byte{1})
	require.NoError(t, err)
	m.FailWrites(boom)
	_, err = m.Write([]byte{2})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, [][]byte{{1}}, m.Writes())

	closed := false
	m.OnClose(func() { closed = true })
	require.NoError(t, m.Close())
	assert.True(t, closed)
	assert.True(t, m.Closed())

	_, err = m.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = m.Write([]byte{1})
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestDescribePort(t *testing.T) {
	teensy := describePort(&enumerator.PortDetails{
		Name:         "/dev/ttyACM0",
		IsUSB:        true,
		VID:          "16c0",
		PID:          "0483",
		SerialNumber: "12345",
		Product:      "USB Serial",
	})
	assert.Equal(t, "ttyACM0", teensy.Name)
	assert.Equal(t, "/dev/ttyACM0", teensy.Device)
	assert.Equal(t, LikelyManufacturer, teensy.Manufacturer)
	assert.Equal(t, "16C0", teensy.VID)
	assert.True(t, teensy.Likely)

	byProduct := describePort(&enumerator.PortDetails{
		Name:    "/dev/ttyACM3",
		IsUSB:   true,
		VID:     "FFFF",
		Product: "Teensy 3.2",
	})
	assert.True(t, byProduct.Likely)
	assert.Empty(t, byProduct.Manufacturer)

	arduino := describePort(&enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "2341"})
	assert.Equal(t, "Arduino", arduino.Manufacturer)
	assert.False(t, arduino.Likely)

	builtin := describePort(&enumerator.PortDetails{Name: "/dev/ttyS0"})
	assert.False(t, builtin.Likely)
	assert.Empty(t, builtin.VID)
}

func TestListPorts(t *testing.T) {
	orig := detailedPortsList
	t.Cleanup(func() { detailedPortsList = orig })

	detailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "16C0", PID: "0483"},
		}, nil
	}
	ports, err := ListPorts()
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.False(t, ports[0].Likely)
	assert.True(t, ports[1].Likely)

	detailedPortsList = func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	}
	_, err = ListPorts()
	assert.Error(t, err)
}
