package framemux

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// fakePacketConn implements net.PacketConn over a queue of datagrams.
type fakePacketConn struct {
	mu          sync.Mutex
	cond        *sync.Cond
	queue       [][]byte
	closed      bool
	timeoutOnce bool
}

func newFakePacketConn(datagrams ...string) *fakePacketConn {
	c := &fakePacketConn{}
	c.cond = sync.NewCond(&c.mu)
	for _, d := range datagrams {
		c.queue = append(c.queue, []byte(d))
	}
	return c
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func (c *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeoutOnce {
		c.timeoutOnce = false
		return 0, nil, timeoutError{}
	}
	for !c.closed && len(c.queue) == 0 {
		c.cond.Wait()
	}
	if c.closed {
		return 0, nil, net.ErrClosed
	}
	d := c.queue[0]
	c.queue = c.queue[1:]
	n := copy(p, d)
	return n, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999}, nil
}

func (c *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := make([]byte, len(p))
	copy(d, p)
	c.queue = append(c.queue, d)
	c.cond.Signal()
	return len(p), nil
}

func (c *fakePacketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

func (c *fakePacketConn) LocalAddr() net.Addr                { return &net.UDPAddr{} }
func (c *fakePacketConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakePacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

// TestUDPSource_FramesDatagramsAsLines tests that each datagram becomes one
// newline-terminated line regardless of how the sender framed it
func TestUDPSource_FramesDatagramsAsLines(t *testing.T) {
	conn := newFakePacketConn("frameA", "frameB\n")
	src := NewUDPSourceFromConn(conn)

	scanner := bufio.NewScanner(src)

	want := []string{"frameA", "frameB"}
	for _, w := range want {
		if !scanner.Scan() {
			t.Fatalf("Scan ended early, wanted %q: %v", w, scanner.Err())
		}
		if got := scanner.Text(); got != w {
			t.Errorf("Expected %q, got %q", w, got)
		}
	}

	src.Close()
	if scanner.Scan() {
		t.Error("Expected scanner to end after Close")
	}
	if err := scanner.Err(); err != nil {
		t.Errorf("Expected clean EOF after Close, got %v", err)
	}
}

// TestUDPSource_SmallDestinationBuffer tests that a datagram larger than the
// read buffer is delivered across multiple reads
func TestUDPSource_SmallDestinationBuffer(t *testing.T) {
	conn := newFakePacketConn("hello-world")
	src := NewUDPSourceFromConn(conn)
	defer src.Close()

	var got []byte
	p := make([]byte, 4)
	for len(got) == 0 || got[len(got)-1] != '\n' {
		n, err := src.Read(p)
		if err != nil {
			t.Fatalf("Read returned error: %v", err)
		}
		got = append(got, p[:n]...)
	}

	if string(got) != "hello-world\n" {
		t.Errorf("Expected %q, got %q", "hello-world\n", string(got))
	}
}

// TestUDPSource_TimeoutRetries tests that deadline timeouts are retried
// rather than surfaced as stream errors
func TestUDPSource_TimeoutRetries(t *testing.T) {
	conn := newFakePacketConn("frame")
	conn.timeoutOnce = true
	src := NewUDPSourceFromConn(conn)
	defer src.Close()

	p := make([]byte, 64)
	n, err := src.Read(p)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(p[:n]) != "frame\n" {
		t.Errorf("Expected %q, got %q", "frame\n", string(p[:n]))
	}
}

// TestUDPSource_EmptyDatagramSkipped tests that zero-length datagrams do not
// produce lines
func TestUDPSource_EmptyDatagramSkipped(t *testing.T) {
	conn := newFakePacketConn("", "frame")
	src := NewUDPSourceFromConn(conn)
	defer src.Close()

	p := make([]byte, 64)
	n, err := src.Read(p)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(p[:n]) != "frame\n" {
		t.Errorf("Expected %q, got %q", "frame\n", string(p[:n]))
	}
}

// TestUDPSource_CloseUnblocksRead tests that Close ends a blocked Read with
// EOF
func TestUDPSource_CloseUnblocksRead(t *testing.T) {
	conn := newFakePacketConn()
	src := NewUDPSourceFromConn(conn)

	done := make(chan error, 1)
	go func() {
		p := make([]byte, 64)
		_, err := src.Read(p)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	src.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Expected io.EOF, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Read did not unblock after Close")
	}
}

// TestUDPSource_RealSocket runs the datagram path over a real loopback
// socket and through the mux
func TestUDPSource_RealSocket(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to open socket: %v", err)
	}

	src := NewUDPSourceFromConn(conn)
	mux := NewFrameMux(src)
	defer mux.Close()

	_, ch := mux.Subscribe()

	go mux.Monitor(context.Background())

	sender, err := net.Dial("udp", conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Failed to dial socket: %v", err)
	}
	defer sender.Close()

	if _, err := sender.Write([]byte(`{"points":[[1,2]]}`)); err != nil {
		t.Fatalf("Failed to send datagram: %v", err)
	}

	select {
	case line := <-ch:
		if line != `{"points":[[1,2]]}` {
			t.Errorf("Unexpected line %q", line)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for datagram to reach subscriber")
	}
}
