package framemux

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/monitoring"
)

// udpReadTimeout bounds each blocking read so Close is noticed promptly.
const udpReadTimeout = time.Second

// UDPSource adapts a datagram socket to the mux's line-stream model. Each
// datagram carries one NDJSON frame; Read returns it newline-terminated so
// the scanner sees one line per datagram. Read is meant for a single reader
// goroutine (the mux monitor).
type UDPSource struct {
	conn    net.PacketConn
	buf     []byte
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewUDPSource listens for detector datagrams on address. rcvBuf sets the
// socket receive buffer when positive.
func NewUDPSource(address string, rcvBuf int) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %v", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP: %v", err)
	}
	if rcvBuf > 0 {
		if err := conn.SetReadBuffer(rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer to %d bytes: %v (some OSes clamp buffer sizes)", rcvBuf, err)
		}
	}
	monitoring.Logf("Listening for detector frames on %s", address)
	return NewUDPSourceFromConn(conn), nil
}

// NewUDPSourceFromConn wraps an existing packet connection. Used by tests.
func NewUDPSourceFromConn(conn net.PacketConn) *UDPSource {
	return &UDPSource{
		conn:   conn,
		buf:    make([]byte, 64*1024),
		closed: make(chan struct{}),
	}
}

// Read returns the next datagram with a trailing newline, buffering any
// remainder a small destination could not hold.
func (u *UDPSource) Read(p []byte) (int, error) {
	if len(u.pending) > 0 {
		n := copy(p, u.pending)
		u.pending = u.pending[n:]
		return n, nil
	}

	for {
		select {
		case <-u.closed:
			return 0, io.EOF
		default:
		}

		u.conn.SetReadDeadline(time.Now().Add(udpReadTimeout))
		n, _, err := u.conn.ReadFrom(u.buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-u.closed:
				return 0, io.EOF
			default:
			}
			return 0, err
		}
		if n == 0 {
			continue
		}

		line := make([]byte, 0, n+1)
		line = append(line, u.buf[:n]...)
		if line[len(line)-1] != '\n' {
			line = append(line, '\n')
		}

		m := copy(p, line)
		u.pending = line[m:]
		return m, nil
	}
}

// Close shuts the socket down and unblocks any in-progress Read.
func (u *UDPSource) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closed)
		err = u.conn.Close()
	})
	return err
}
