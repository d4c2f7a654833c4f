package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/form-relay-service/internal/config"
	"github.com/skypro1111/form-relay-service/internal/form"
	"github.com/skypro1111/form-relay-service/internal/metrics"
	"github.com/skypro1111/form-relay-service/internal/storage"
)

// Listener receives form datagrams and appends them to the store
type Listener struct {
	conn    *net.UDPConn
	config  *config.RelayConfig
	logger  *slog.Logger
	store   storage.Store
	metrics *metrics.Metrics
	now     func() time.Time
	read    func([]byte) (int, *net.UDPAddr, error)

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Counters
	datagramsReceived  uint64
	datagramsPersisted uint64
	decodeErrors       uint64
	storeErrors        uint64
	mu                 sync.RWMutex
}

// NewListener creates a new relay listener instance
func NewListener(cfg *config.RelayConfig, logger *slog.Logger, store storage.Store, m *metrics.Metrics) *Listener {
	ctx, cancel := context.WithCancel(context.Background())

	return &Listener{
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: m,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start binds the UDP socket and begins receiving. A bind failure is returned
// to the caller; nothing is started in that case.
func (l *Listener) Start() error {
	addr, err := net.ResolveUDPAddr("udp", l.config.ListenAddress())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}

	l.conn = conn
	if l.read == nil {
		l.read = conn.ReadFromUDP
	}

	l.logger.Info("Relay listener started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", l.config.BufferSize),
	)

	l.wg.Add(1)
	go l.receiveLoop()

	return nil
}

// Addr returns the bound address, or nil before Start
func (l *Listener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Stop closes the socket and waits for the in-flight datagram to finish
func (l *Listener) Stop() error {
	l.logger.Info("Stopping relay listener...")

	l.cancel()

	var closeErr error
	if l.conn != nil {
		// Closing unblocks ReadFromUDP.
		closeErr = l.conn.Close()
		if closeErr != nil {
			l.logger.Warn("Error closing UDP connection", slog.String("error", closeErr.Error()))
		}
	}

	l.wg.Wait()

	stats := l.Statistics()
	l.logger.Info("Relay listener stopped",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_persisted", stats.DatagramsPersisted),
		slog.Uint64("decode_errors", stats.DecodeErrors),
		slog.Uint64("store_errors", stats.StoreErrors),
	)

	return closeErr
}

// Bounds for the pause after a failed read.
const (
	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

// nextReadBackoff doubles d up to maxReadBackoff
func nextReadBackoff(d time.Duration) time.Duration {
	if d < minReadBackoff {
		return minReadBackoff
	}
	if d *= 2; d > maxReadBackoff {
		return maxReadBackoff
	}
	return d
}

// receiveLoop reads one datagram at a time and handles it before reading the
// next, so store writes never overlap.
func (l *Listener) receiveLoop() {
	defer l.wg.Done()

	buffer := make([]byte, l.config.BufferSize)
	var backoff time.Duration

	for {
		// Datagrams longer than the buffer are truncated by the kernel.
		n, remoteAddr, err := l.read(buffer)
		if err != nil {
			select {
			case <-l.ctx.Done():
				l.logger.Debug("Receive loop stopping due to shutdown")
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			backoff = nextReadBackoff(backoff)
			l.logger.Error("Failed to read UDP datagram",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)

			timer := time.NewTimer(backoff)
			select {
			case <-l.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		backoff = 0

		l.mu.Lock()
		l.datagramsReceived++
		l.mu.Unlock()
		l.metrics.RecordDatagramReceived(n)

		l.handleDatagram(buffer[:n], remoteAddr)
	}
}

// handleDatagram decodes and persists a single datagram. Failures are logged
// and the datagram is dropped.
func (l *Listener) handleDatagram(data []byte, remoteAddr *net.UDPAddr) {
	fields, err := form.Decode(data)
	if err != nil {
		l.mu.Lock()
		l.decodeErrors++
		l.mu.Unlock()
		l.metrics.RecordDecodeError()

		l.logger.Error("Failed to decode datagram",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("datagram_size", len(data)),
			slog.String("error", err.Error()),
		)
		return
	}

	entry := storage.NewEntry(l.now(), fields)

	start := time.Now()
	err = l.store.Append(l.ctx, entry)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		l.mu.Lock()
		l.storeErrors++
		l.mu.Unlock()

		kind := string(storage.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		l.metrics.RecordStoreError(kind, elapsed)

		l.logger.Error("Failed to persist submission",
			slog.String("timestamp", entry.Timestamp),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}

	l.mu.Lock()
	l.datagramsPersisted++
	l.mu.Unlock()
	l.metrics.RecordDatagramPersisted(elapsed)

	l.logger.Debug("Submission persisted",
		slog.String("timestamp", entry.Timestamp),
		slog.Int("fields", fields.Len()),
		slog.String("remote_addr", remoteAddr.String()),
	)
}

// Statistics returns current listener counters
func (l *Listener) Statistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Statistics{
		DatagramsReceived:  l.datagramsReceived,
		DatagramsPersisted: l.datagramsPersisted,
		DecodeErrors:       l.decodeErrors,
		StoreErrors:        l.storeErrors,
	}
}

// Statistics represents relay listener counters
type Statistics struct {
	DatagramsReceived  uint64 `json:"datagrams_received"`
	DatagramsPersisted uint64 `json:"datagrams_persisted"`
	DecodeErrors       uint64 `json:"decode_errors"`
	StoreErrors        uint64 `json:"store_errors"`
}
