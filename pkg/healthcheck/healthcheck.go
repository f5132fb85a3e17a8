package healthcheck

import (
	"context"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// ReadyMsg is the single byte written to a peer once the profiler has
// entered its sampling loop.
const ReadyMsg = 0x01

// ReadyServer lets the external process lifecycle manager block until
// the profiler is actually sampling: it listens on a unix domain socket
// and answers every connection with ReadyMsg once readiness is notified.
type ReadyServer struct {
	ln         net.Listener
	readyCh    chan struct{}
	socketPath string
	logger     log.Logger
}

func NewReadyServer(socketPath string, logger log.Logger) *ReadyServer {
	l := logger.With().Str("component", "healthcheck").Logger()
	return &ReadyServer{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     l,
	}
}

// Listen starts the UDS listener and accepts connections in the
// background. A stale socket from a previous run is removed first.
func (s *ReadyServer) Listen(ctx context.Context) error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.socketPath)
	}
	s.ln = ln

	go s.acceptConnections(ctx)

	return nil
}

// NotifyReady marks the profiler as sampling. Must be called at most
// once; every pending and future connection is answered afterwards.
func (s *ReadyServer) NotifyReady() {
	s.logger.Debug().Msg("marking readiness")
	close(s.readyCh)
}

// Shutdown closes the listener and removes the socket. Idempotent.
func (s *ReadyServer) Shutdown() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing listener")
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "error removing socket")
	}

	return nil
}

func (s *ReadyServer) acceptConnections(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.logger.Debug().Msg("stopping accepting connections")
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}

		go s.answerWhenReady(ctx, conn)
	}
}

// answerWhenReady holds the connection open until readiness, then writes
// the ready byte. A peer that disconnects early is ignored.
func (s *ReadyServer) answerWhenReady(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		if _, err := conn.Write([]byte{ReadyMsg}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("failed to write ready message")
			}
		}
	case <-ctx.Done():
		s.logger.Debug().Msg("context canceled before readiness")
	}
}
