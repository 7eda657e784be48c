package transport

import (
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Monitor manages a serial port connection for reading device output,
// typically after a flash to watch the application boot.
type Monitor struct {
	port     serial.Port
	portName string
	baudRate int
	mu       sync.Mutex
	running  bool
	lineCh   chan string
	done     chan struct{}
}

// NewMonitor creates a new serial monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		lineCh: make(chan string, 64),
		done:   make(chan struct{}),
	}
}

// Connect opens a serial port with the given settings and starts reading.
func (m *Monitor) Connect(portName string, baudRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.disconnectLocked()
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return err
	}

	m.port = port
	m.portName = portName
	m.baudRate = baudRate
	m.running = true
	m.done = make(chan struct{})

	go m.readLoop(port, m.done)
	return nil
}

// Disconnect closes the serial port and stops the read loop.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Monitor) disconnectLocked() {
	if !m.running {
		return
	}
	m.running = false
	if m.port != nil {
		m.port.Close()
	}
	close(m.done)
}

// Write sends data to the serial port.
func (m *Monitor) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil || !m.running {
		return io.ErrClosedPipe
	}
	_, err := m.port.Write(data)
	return err
}

// Lines returns the channel that receives complete output lines.
func (m *Monitor) Lines() <-chan string {
	return m.lineCh
}

// Connected returns whether the monitor is connected.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) readLoop(port serial.Port, done chan struct{}) {
	buf := make([]byte, 1024)
	var pending string

	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}

		pending += string(buf[:n])
		for {
			idx := strings.IndexByte(pending, '\n')
			if idx == -1 {
				break
			}
			line := strings.TrimRight(pending[:idx], "\r")
			pending = pending[idx+1:]
			if line == "" {
				continue
			}
			select {
			case m.lineCh <- line:
			default:
				// Drop output if the consumer falls behind
			}
		}

		// Flush oversized partial lines so binary noise cannot grow unbounded
		if len(pending) > 1024 {
			select {
			case m.lineCh <- strings.TrimSpace(pending):
			default:
			}
			pending = ""
		}
	}
}
