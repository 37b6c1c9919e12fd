package peer

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mvcruz/lockstep/pkg/types"
)

const readTimeout = 5 * time.Second

// Server listens for coordination messages from peers and hands them to
// the coordinator. One short-lived connection carries one message, the
// same shape the senders produce.
type Server struct {
	addr  string
	coord *Coordinator
	log   hclog.Logger

	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(addr string, coord *Coordinator, log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Server{
		addr:  addr,
		coord: coord,
		log:   log.Named("peer-server"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("listening for peer messages", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		s.log.Warn("failed to set read deadline", "error", err)
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		msg, err := types.ParseMessage(scanner.Text())
		if err != nil {
			s.log.Warn("dropping message", "remote", conn.RemoteAddr().String(), "error", err)
			continue
		}
		s.coord.HandleMessage(msg)
	}
}

// Stop closes the listener and waits for in-flight handlers.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.wg.Wait()
	return err
}
