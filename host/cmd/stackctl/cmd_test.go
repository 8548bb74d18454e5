package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/host/serial"
	"stackctl/protocol"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func simArgs(args ...string) []string {
	return append(args, "--driver", "sim", "--port", "sim0", "--log-level", "warn")
}

func TestGetStatusCommand(t *testing.T) {
	out, errOut, err := executeCommand(t, "", simArgs("get_status")...)
	require.NoError(t, err)
	assert.Contains(t, out, "get_status")
	assert.Contains(t, errOut, "Connected to sim0.")
}

func TestGetConfigJSON(t *testing.T) {
	out, _, err := executeCommand(t, "", simArgs("get_config", "-o", "json")...)
	require.NoError(t, err)

	var view struct {
		Kind    string          `json:"kind"`
		Tag     int             `json:"tag"`
		Payload protocol.Config `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "get_config", view.Kind)
	assert.Equal(t, 3, view.Tag)
	assert.Equal(t, *protocol.DefaultConfig(), view.Payload)
}

func TestGetVersionYAML(t *testing.T) {
	out, _, err := executeCommand(t, "", simArgs("get_version", "-o", "yaml")...)
	require.NoError(t, err)
	assert.Contains(t, out, "kind: get_version")
	assert.Contains(t, out, "hash: simulator")
}

func TestSetExposureCommand(t *testing.T) {
	out, _, err := executeCommand(t, "", simArgs("set_exposure", `{"micros": 2500}`)...)
	require.NoError(t, err)
	assert.Equal(t, "Sending set_exposure{micros=2500}\n", out)
}

func TestActionCommands(t *testing.T) {
	for _, name := range []string{"action_home", "action_stack", "action_stop", "action_photo"} {
		out, _, err := executeCommand(t, "", simArgs(name)...)
		require.NoError(t, err, name)
		assert.Equal(t, "Sending "+name+"\n", out)
	}

	out, _, err := executeCommand(t, "", simArgs("action_motor", `{"steps": -50}`)...)
	require.NoError(t, err)
	assert.Contains(t, out, "steps=-50")
}

func TestSetCommandRejectsBadPayload(t *testing.T) {
	testCases := [][]string{
		{"set_exposure"},
		{"set_exposure", `{"micros": "long"}`},
		{"set_exposure", `{"millis": 5}`},
		{"set_exposure", `{"micros": 5} {}`},
		{"action_motor", `{"steps": 3000000000}`},
		{"get_status", "extra"},
	}
	for _, args := range testCases {
		_, _, err := executeCommand(t, "", simArgs(args...)...)
		assert.Error(t, err, "%v", args)
	}
}

func TestParsePayloadKeepsConfigDefaults(t *testing.T) {
	p, err := parsePayload(protocol.SetConfig, `{"stack_count": 12, "transmission_ratio": 2.5}`)
	require.NoError(t, err)
	cfg := p.(*protocol.Config)
	assert.Equal(t, uint32(12), cfg.StackCount)
	assert.Equal(t, 2.5, cfg.TransmissionRatio)
	assert.Equal(t, uint32(protocol.DefaultMotorMaxWidth), cfg.MotorMaxWidth)

	_, err = parsePayload(protocol.ActionStop, `{}`)
	assert.Error(t, err)
}

func TestKindHelpShowsDefaultPayload(t *testing.T) {
	out, _, err := executeCommand(t, "", "set_config", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, `"stack_delay_after_photo":200`)
}

func TestConnectFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyACM9")
	_, errOut, err := executeCommand(t, "", "get_status", "--port", missing, "--log-level", "off")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not connect")
	assert.Contains(t, errOut, "error:")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("driver = \"sim\"\nport = \"from-file\"\nlog_level = \"off\"\n"), 0o600))

	_, errOut, err := executeCommand(t, "", "get_status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Connected to from-file.")

	_, errOut, err = executeCommand(t, "", "get_status", "--config", path, "--port", "from-flag")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Connected to from-flag.")

	_, _, err = executeCommand(t, "", "get_status", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestInvalidFlags(t *testing.T) {
	_, _, err := executeCommand(t, "", simArgs("kinds", "-o", "xml")...)
	assert.Error(t, err)

	_, _, err = executeCommand(t, "", simArgs("kinds", "--packet-size", "8")...)
	assert.Error(t, err)
}

func TestKindsCommand(t *testing.T) {
	out, _, err := executeCommand(t, "", "kinds")
	require.NoError(t, err)
	for _, info := range protocol.Kinds() {
		assert.Contains(t, out, info.Name)
	}
	assert.Contains(t, out, "transmission_ratio:fixed16.16")
}

func TestPortsCommand(t *testing.T) {
	orig := listPorts
	defer func() { listPorts = orig }()
	listPorts = func() ([]serial.PortInfo, error) {
		return []serial.PortInfo{
			{Name: "ttyS0", Device: "/dev/ttyS0"},
			{Name: "ttyACM0", Device: "/dev/ttyACM0", Manufacturer: "Teensyduino", VID: "16C0", Likely: true},
		}, nil
	}

	out, _, err := executeCommand(t, "", "ports")
	require.NoError(t, err)
	assert.Contains(t, out, "/dev/ttyS0")
	assert.Contains(t, out, "likely rig: /dev/ttyACM0")

	out, _, err = executeCommand(t, "", "ports", "-o", "json")
	require.NoError(t, err)
	var ports []serial.PortInfo
	require.NoError(t, json.Unmarshal([]byte(out), &ports))
	require.Len(t, ports, 2)
	assert.True(t, ports[1].Likely)

	listPorts = func() ([]serial.PortInfo, error) { return nil, errors.New("enumeration failed") }
	_, _, err = executeCommand(t, "", "ports")
	assert.Error(t, err)
}

func TestMoveCommand(t *testing.T) {
	out, _, err := executeCommand(t, "", "move", "--driver", "sim", "--log-level", "warn", "--", "-120")
	require.NoError(t, err)
	assert.Equal(t, "Moved -120 steps\n", out)

	out, _, err = executeCommand(t, "", simArgs("move", "--degrees", "90")...)
	require.NoError(t, err)
	assert.Equal(t, "Moved 90 degrees (90 steps)\n", out)

	_, _, err = executeCommand(t, "", simArgs("move")...)
	assert.Error(t, err)
	_, _, err = executeCommand(t, "", simArgs("move", "5", "--degrees", "1")...)
	assert.Error(t, err)
	_, _, err = executeCommand(t, "", simArgs("move", "five")...)
	assert.Error(t, err)
}

func TestShellCommand(t *testing.T) {
	input := strings.Join([]string{
		"help",
		"get_version",
		`set_exposure '{"micros": 10}'`,
		"set_exposure",
		"move 5",
		"move --degrees 2",
		"stats",
		"bogus",
		"quit",
		"get_status",
	}, "\n")

	out, _, err := executeCommand(t, input, simArgs("shell")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Available commands:")
	assert.Contains(t, out, "hash:      simulator")
	assert.Contains(t, out, "Sending set_exposure{micros=10}")
	assert.Contains(t, out, "set_exposure needs one JSON argument")
	assert.Contains(t, out, "Moved 5 steps")
	assert.Contains(t, out, "Moved 2 degrees (2 steps)")
	assert.Contains(t, out, "state: connected")
	assert.Contains(t, out, "Unknown command: bogus")
	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "kind:  get_status", "commands after quit are not run")
}

func TestMonitorCommand(t *testing.T) {
	out, _, err := executeCommand(t, "", simArgs("monitor", "--poll", "10ms", "--count", "2", "--duration", "5s",
		"--metrics-addr", "127.0.0.1:0")...)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "kind:"))
	assert.Contains(t, out, "get_progress")
}

func TestMonitorStopsAfterDuration(t *testing.T) {
	start := time.Now()
	_, _, err := executeCommand(t, "", simArgs("monitor", "--duration", "50ms")...)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stackctl version "+protocol.ProtocolVersion)
}

type fakeRig struct {
	progress *protocol.Progress
	actions  []string
	err      error
}

func (f *fakeRig) Progress(context.Context) (*protocol.Progress, error) {
	return f.progress, f.err
}

func (f *fakeRig) Stack(context.Context) error {
	f.actions = append(f.actions, "stack")
	return f.err
}

func (f *fakeRig) Stop(context.Context) error {
	f.actions = append(f.actions, "stop")
	return f.err
}

func (f *fakeRig) Photo(context.Context) error {
	f.actions = append(f.actions, "photo")
	return f.err
}

func (f *fakeRig) Home(context.Context) error {
	f.actions = append(f.actions, "home")
	return f.err
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchModel(t *testing.T) {
	fake := &fakeRig{progress: &protocol.Progress{
		CurrentState:    protocol.StateRunning,
		CurrentSubState: 8,
		CurrentStep:     2,
		StackCount:      5,
	}}
	m := newWatchModel(fake, "/dev/ttyACM0", 100*time.Millisecond, time.Second)
	assert.Contains(t, m.View(), "waiting for progress")

	msg := m.fetch()()
	updated, _ := m.Update(msg)
	m = updated.(watchModel)
	view := m.View()
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "movement")
	assert.Contains(t, view, "2 / 5")
	assert.Contains(t, view, "25%")

	updated, cmd := m.Update(key("s"))
	m = updated.(watchModel)
	require.NotNil(t, cmd)
	assert.Equal(t, actionMsg("stack"), cmd())
	assert.Equal(t, []string{"stack"}, fake.actions)

	updated, _ = m.Update(actionMsg("stack"))
	m = updated.(watchModel)
	assert.Contains(t, m.View(), "sent stack")

	fake.err = errors.New("link down")
	updated, _ = m.Update(m.fetch()())
	m = updated.(watchModel)
	assert.Contains(t, m.View(), "error: link down")

	_, cmd = m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, barWidth, strings.Count(progressBar(0), "░"))
	assert.Equal(t, barWidth, strings.Count(progressBar(1), "█"))
	assert.Equal(t, barWidth, strings.Count(progressBar(2), "█"))
}
