package link

import (
	"errors"
	"os"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/harry0537/AstraBackup-sub001/internal/metrics"
)

// ErrNoLink reports that no candidate endpoint produced a heartbeat within
// the handshake window. Callers switch to demo mode; this is a degraded
// state, not a fatal one.
var ErrNoLink = errors.New("link: no control link available")

// The agent identifies itself as a ground-control peer on the wire.
const (
	localSystemID    = 255
	localComponentID = 197
)

// Link is an adopted control-link connection. A reader goroutine decodes
// frames into a buffered channel; consumers drain it without blocking via
// TryRecv.
type Link struct {
	endpoint string
	conn     transport
	msgs     chan Message

	mu     sync.Mutex
	closed bool
	seq    uint8
}

// transport abstracts the serial port so tests can attach over pipes.
type transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Dial probes the candidate device paths in order and adopts the first one
// that yields a heartbeat within handshakeTimeout. All candidates failing
// yields ErrNoLink.
func Dial(candidates []string, baud int, handshakeTimeout time.Duration) (*Link, error) {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
		if err != nil {
			continue
		}
		l, err := Attach(port, path, handshakeTimeout)
		if err != nil {
			continue // Attach closed the port
		}
		return l, nil
	}
	return nil, ErrNoLink
}

// Attach wraps an established transport and completes the heartbeat
// handshake. On handshake timeout the transport is closed and ErrNoLink
// returned.
func Attach(conn transport, endpoint string, handshakeTimeout time.Duration) (*Link, error) {
	l := &Link{
		endpoint: endpoint,
		conn:     conn,
		msgs:     make(chan Message, 64),
	}
	go l.readLoop()
	if !l.awaitHeartbeat(handshakeTimeout) {
		_ = l.Close()
		return nil, ErrNoLink
	}
	return l, nil
}

// Endpoint reports the adopted device path.
func (l *Link) Endpoint() string { return l.endpoint }

// TryRecv returns the next decoded message without blocking.
func (l *Link) TryRecv() (Message, bool) {
	select {
	case m, ok := <-l.msgs:
		if !ok {
			return nil, false
		}
		return m, true
	default:
		return nil, false
	}
}

// SendHeartbeat announces the agent to the autopilot. Best effort; a write
// error just means the next one will try again.
func (l *Link) SendHeartbeat() error {
	l.mu.Lock()
	seq := l.seq
	l.seq++
	l.mu.Unlock()
	b, err := EncodeMessage(Heartbeat{VehicleType: 6, Autopilot: 8}, seq, localSystemID, localComponentID)
	if err != nil {
		return err
	}
	_, err = l.conn.Write(b)
	return err
}

// Close tears down the transport; the reader drains out and the message
// channel closes. Safe to call twice.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.conn.Close()
}

func (l *Link) readLoop() {
	defer close(l.msgs)
	fr := newFrameReader(l.conn)
	for {
		f, err := fr.next()
		if err != nil {
			return
		}
		msg, ok := decodeMessage(f)
		if !ok {
			continue
		}
		metrics.IncLinkMessage(msg.Type())
		select {
		case l.msgs <- msg:
		default:
			// consumer is behind; freshest data wins, drop the oldest
			select {
			case <-l.msgs:
			default:
			}
			select {
			case l.msgs <- msg:
			default:
			}
		}
	}
}

// awaitHeartbeat consumes messages until a heartbeat arrives or the window
// closes. Non-heartbeat traffic seen first is simply discarded; telemetry
// is not trusted before the handshake.
func (l *Link) awaitHeartbeat(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m, ok := l.TryRecv(); ok {
			if _, isHB := m.(Heartbeat); isHB {
				return true
			}
			continue
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
