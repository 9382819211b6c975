package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar"
)

// forwardQueueSize is the number of packets buffered for forwarding,
// roughly a quarter second of HDL-64E traffic.
const forwardQueueSize = 1000

// DropCounter records packets the forwarder had to discard.
type DropCounter interface {
	AddDropped()
}

// PacketForwarder mirrors raw packets to another UDP address without
// blocking the receive loop.
type PacketForwarder struct {
	conn        net.Conn
	channel     chan []byte
	stats       DropCounter
	logInterval time.Duration
	address     string
	closeOnce   sync.Once
}

// NewPacketForwarder dials address ("host:port") for forwarding.
func NewPacketForwarder(address string, stats DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return newPacketForwarder(conn, address, stats, logInterval), nil
}

func newPacketForwarder(conn net.Conn, address string, stats DropCounter, logInterval time.Duration) *PacketForwarder {
	if stats == nil {
		stats = noopStats{}
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, forwardQueueSize),
		stats:       stats,
		logInterval: logInterval,
		address:     address,
	}
}

// Address returns the forwarding destination.
func (f *PacketForwarder) Address() string { return f.address }

// Start runs the forwarding goroutine until ctx is cancelled. Write
// failures are summarised once per log interval.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-f.channel:
				if !ok {
					return
				}
				if _, err := f.conn.Write(packet); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					lidar.Opsf("dropped %d forwarded packets due to errors (latest: %v)", failed, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()

	lidar.Opsf("forwarding packets to %s", f.address)
}

// ForwardAsync queues a copy of packet. When the queue is full the packet
// is dropped and counted.
func (f *PacketForwarder) ForwardAsync(packet []byte) {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	select {
	case f.channel <- cp:
	default:
		f.stats.AddDropped()
	}
}

// Close stops accepting packets and closes the connection.
func (f *PacketForwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.channel)
		err = f.conn.Close()
	})
	return err
}
