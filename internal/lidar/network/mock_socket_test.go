package network

import (
	"net"
	"sync"
	"time"
)

// mockUDPSocket replays queued packets and then reports timeouts until closed.
type mockUDPSocket struct {
	mu             sync.Mutex
	packets        []mockPacket
	readErrs       []error
	closed         bool
	readBufferSize int
	readBufferErr  error
	local          *net.UDPAddr
}

type mockPacket struct {
	data []byte
	addr *net.UDPAddr
}

func newMockUDPSocket(packets ...[]byte) *mockUDPSocket {
	m := &mockUDPSocket{local: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2368}}
	for _, p := range packets {
		m.packets = append(m.packets, mockPacket{data: p, addr: &net.UDPAddr{IP: net.ParseIP("192.168.3.43"), Port: 2368}})
	}
	return m
}

func (m *mockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		return 0, nil, err
	}
	if len(m.packets) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	p := m.packets[0]
	m.packets = m.packets[1:]
	return copy(b, p.data), p.addr, nil
}

func (m *mockUDPSocket) SetReadBuffer(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readBufferErr != nil {
		return m.readBufferErr
	}
	m.readBufferSize = n
	return nil
}

func (m *mockUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (m *mockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockUDPSocket) LocalAddr() net.Addr { return m.local }

func (m *mockUDPSocket) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.packets)
}

func (m *mockUDPSocket) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockSocketFactory struct {
	socket *mockUDPSocket
	err    error
	calls  int
}

func (f *mockSocketFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
