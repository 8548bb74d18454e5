package serial

import (
	"errors"
	"sync"
	"time"
)

var ErrPortClosed = errors.New("serial port closed")

// MockPort is an in-memory Port for tests. Each Read returns at most one fed
// chunk; an empty queue behaves like an expired read timeout.
type MockPort struct {
	mu        sync.Mutex
	chunks    [][]byte
	writes    [][]byte
	readErr   error
	writeErr  error
	closed    bool
	closeHook func()
	writeHook func([]byte)

	// IdleDelay is slept by Read when no data is queued
	IdleDelay time.Duration
}

// NewMockPort creates an open MockPort
func NewMockPort() *MockPort {
	return &MockPort{IdleDelay: 200 * time.Microsecond}
}

// OnWrite registers fn to run after every successful Write with a copy of
// the written bytes. fn may call Feed to script a reply.
func (m *MockPort) OnWrite(fn func([]byte)) {
	m.mu.Lock()
	m.writeHook = fn
	m.mu.Unlock()
}

// Feed queues chunks to be returned by Read
func (m *MockPort) Feed(chunks ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks = append(m.chunks, append([]byte(nil), c...))
	}
}

// FailReads makes the next Read return err
func (m *MockPort) FailReads(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// FailWrites makes every following Write return err
func (m *MockPort) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// OnClose registers fn to run when the port is closed
func (m *MockPort) OnClose(fn func()) {
	m.mu.Lock()
	m.closeHook = fn
	m.mu.Unlock()
}

func (m *MockPort) Read(b []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	if err := m.readErr; err != nil {
		m.readErr = nil
		m.mu.Unlock()
		return 0, err
	}
	if len(m.chunks) == 0 {
		delay := m.IdleDelay
		m.mu.Unlock()
		time.Sleep(delay)
		return 0, nil
	}
	n := copy(b, m.chunks[0])
	if n < len(m.chunks[0]) {
		m.chunks[0] = m.chunks[0][n:]
	} else {
		m.chunks = m.chunks[1:]
	}
	m.mu.Unlock()
	return n, nil
}

func (m *MockPort) Write(b []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrPortClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	data := append([]byte(nil), b...)
	m.writes = append(m.writes, data)
	hook := m.writeHook
	m.mu.Unlock()
	if hook != nil {
		hook(append([]byte(nil), data...))
	}
	return len(b), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	hook := m.closeHook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (m *MockPort) Flush() error {
	return nil
}

// InWaiting reports the number of queued bytes
func (m *MockPort) InWaiting() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrPortClosed
	}
	n := 0
	for _, c := range m.chunks {
		n += len(c)
	}
	return n, nil
}

// Writes returns a copy of everything written so far, one entry per Write
func (m *MockPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// Closed reports whether Close has been called
func (m *MockPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
