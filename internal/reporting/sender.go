package reporting

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// Sender delivers telemetry records to the collection server
type Sender interface {
	Send(ctx context.Context, r Record) error
}

// UDPSender sends each record as one datagram. The socket is dialled lazily
// and reused.
type UDPSender struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

func NewUDPSender(host string, port int) *UDPSender {
	return &UDPSender{addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

func (s *UDPSender) Send(ctx context.Context, r Record) error {
	payload, err := r.Marshal()
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "udp", s.addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", s.addr, err)
		}
		s.conn = conn
	}

	if _, err = s.conn.Write(payload); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("send to %s: %w", s.addr, err)
	}

	return nil
}

func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	return err
}
