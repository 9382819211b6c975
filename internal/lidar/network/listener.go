package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// MaxDatagramSize bounds the receive buffer. HDL-64E data packets are 1206
// bytes; anything larger is read truncated and rejected by the decoder.
const MaxDatagramSize = 2048

// readTimeout bounds each blocking read so cancellation is noticed promptly.
const readTimeout = 100 * time.Millisecond

// PacketHandler consumes one received datagram. The slice is reused for the
// next read and must not be retained.
type PacketHandler interface {
	HandlePacket(packet []byte, received time.Time) error
}

// PacketStatsInterface is the statistics surface the listener reports to.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddRejected()
	AddDropped()
	LogStats()
}

// UDPListener receives sensor packets on a UDP socket and hands each one to
// a PacketHandler on the receive goroutine.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       PacketStatsInterface
	forwarder   *PacketForwarder
	handler     PacketHandler
	sockets     UDPSocketFactory
	now         func() time.Time

	localAddr chan net.Addr
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Forwarder   *PacketForwarder
	Handler     PacketHandler
	// Sockets defaults to RealUDPSocketFactory.
	Sockets UDPSocketFactory
}

// NewUDPListener creates a listener from config.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	var stats PacketStatsInterface = noopStats{}
	if config.Stats != nil {
		stats = config.Stats
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	var sockets UDPSocketFactory = RealUDPSocketFactory{}
	if config.Sockets != nil {
		sockets = config.Sockets
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		forwarder:   config.Forwarder,
		handler:     config.Handler,
		sockets:     sockets,
		now:         time.Now,
		localAddr:   make(chan net.Addr, 1),
	}
}

type noopStats struct{}

func (noopStats) AddPacket(int) {}
func (noopStats) AddRejected()  {}
func (noopStats) AddDropped()   {}
func (noopStats) LogStats()     {}

// LocalAddr blocks until the socket is bound and returns its address, or
// returns nil if ctx ends first. Useful when listening on port 0.
func (l *UDPListener) LocalAddr(ctx context.Context) net.Addr {
	select {
	case addr := <-l.localAddr:
		l.localAddr <- addr
		return addr
	case <-ctx.Done():
		return nil
	}
}

// Start binds the socket and receives packets until ctx is cancelled.
// It returns ctx.Err() on shutdown.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.sockets.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			lidar.Opsf("failed to set UDP receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	l.localAddr <- conn.LocalAddr()

	lidar.Opsf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}
	go l.startStatsLogging(ctx)

	buffer := make([]byte, MaxDatagramSize)
	for {
		if ctx.Err() != nil {
			lidar.Opsf("UDP listener stopping: %v", ctx.Err())
			return ctx.Err()
		}

		conn.SetReadDeadline(l.now().Add(readTimeout))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			lidar.Diagf("UDP read error: %v", err)
			continue
		}

		if err := l.handlePacket(buffer[:n]); err != nil {
			lidar.Diagf("packet from %v: %v", from, err)
		}
	}
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket processes a single datagram.
func (l *UDPListener) handlePacket(packet []byte) error {
	l.stats.AddPacket(len(packet))

	if l.forwarder != nil {
		l.forwarder.ForwardAsync(packet)
	}
	if l.handler == nil {
		return nil
	}
	if err := l.handler.HandlePacket(packet, l.now()); err != nil {
		l.stats.AddRejected()
		return err
	}
	return nil
}
