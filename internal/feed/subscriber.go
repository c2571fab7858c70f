package feed

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"MailNames/internal/logger"
)

const (
	// defaultRequestTimeout bounds a snapshot request.
	defaultRequestTimeout = 30 * time.Second
)

// Subscriber is one feed consumer: it receives event frames and can
// request a state snapshot over the same connection. Duplicate frames
// are filtered before the handler runs.
type Subscriber struct {
	conn    *quic.Conn   // conn is the connection to the hub
	onEvent func([]byte) // onEvent receives each new event frame
	dedup   *Dedup       // dedup filters replayed frames

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Subscribe connects to a hub and delivers event frames to onEvent.
func Subscribe(ctx context.Context, addr string, privateKey ed25519.PrivateKey, onEvent func([]byte)) (*Subscriber, error) {
	cert, err := selfSignedCert(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, // Identity is the ed25519 key, checked by hand
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())

	s := &Subscriber{
		conn:    conn,
		onEvent: onEvent,
		dedup:   NewDedup(),
		ctx:     subCtx,
		cancel:  cancel,
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return s, nil
}

// RequestSnapshot asks the hub for a compressed state snapshot.
func (s *Subscriber) RequestSnapshot(ctx context.Context) ([]byte, error) {
	stream, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, []byte("snapshot")); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	data, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("read snapshot:\n%w", err)
	}

	return data, nil
}

// Close drops the connection and stops delivery.
func (s *Subscriber) Close() error {
	s.cancel()
	err := s.conn.CloseWithError(0, "closed")
	s.dedup.Close()
	s.wg.Wait()

	return err
}

// receiveLoop accepts event streams until the connection drops.
func (s *Subscriber) receiveLoop() {
	defer s.wg.Done()

	for {
		stream, err := s.conn.AcceptUniStream(s.ctx)
		if err != nil {
			return
		}

		go s.handleStream(stream)
	}
}

// handleStream reads one event frame and delivers it.
func (s *Subscriber) handleStream(stream *quic.ReceiveStream) {
	data, err := readFrame(stream)
	if err != nil {
		logger.Debug("feed read error", "error", err)
		return
	}

	if !s.dedup.Check(data) {
		return
	}

	if s.onEvent != nil {
		s.onEvent(data)
	}
}
