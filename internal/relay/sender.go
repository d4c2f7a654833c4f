package relay

import (
	"context"
	"fmt"
	"net"

	"github.com/skypro1111/form-relay-service/internal/config"
)

// Sender forwards raw form bodies to the relay listener as single datagrams.
// Delivery is best-effort: there is no acknowledgement and no retry.
type Sender struct {
	addr   string
	dialer net.Dialer
}

// NewSender creates a sender targeting the configured relay address
func NewSender(cfg *config.RelayConfig) *Sender {
	return &Sender{addr: cfg.ListenAddress()}
}

// NewSenderTo creates a sender targeting an explicit host:port
func NewSenderTo(addr string) *Sender {
	return &Sender{addr: addr}
}

// Addr returns the destination address
func (s *Sender) Addr() string {
	return s.addr
}

// Send transmits payload unmodified as one datagram. Each call uses its own
// socket so concurrent requests never share state.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	conn, err := s.dialer.DialContext(ctx, "udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to dial relay %s: %w", s.addr, err)
	}
	defer conn.Close()

	n, err := conn.Write(payload)
	if err != nil {
		return fmt.Errorf("failed to send datagram to %s: %w", s.addr, err)
	}
	if n != len(payload) {
		return fmt.Errorf("short datagram write to %s: %d of %d bytes", s.addr, n, len(payload))
	}

	return nil
}
