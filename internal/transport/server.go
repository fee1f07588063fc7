// Package transport is the Transport: a concurrent TCP server that
// accepts one message per connection, decodes it, and hands the
// decoded envelope plus peer address to a dispatcher; and a
// fire-and-forget client that opens a short-lived connection, writes a
// framed message, and reports success/failure.
//
// Grounded on the teacher's *http.Server lifecycle in cmd/server/main.go
// (an explicit handle owning the listener, started and shut down by
// the caller) generalized from HTTP to raw TCP, and on the original
// Python's src/networking.py iniciar_servidor/manejar_cliente for the
// one-goroutine-per-connection accept loop — replacing its module-level
// SERVER_SOCKET/ON_MESSAGE_CALLBACK globals with this explicit Server
// struct (spec.md §9's redesign note).
package transport

import (
	"errors"
	"log"
	"net"

	"chordkv/internal/wire"
)

// maxFrameBytes bounds the per-connection read. Messages larger than
// this are truncated and will fail codec validation — acceptable for
// the intended payloads of small control messages and short string
// values (spec.md §5).
const maxFrameBytes = 4096

// Dispatcher handles one decoded envelope arriving from remoteAddr.
// Implemented by internal/dispatch.
type Dispatcher interface {
	Handle(msg wire.Message, remoteAddr string)
}

// Server owns the listening socket and the dispatcher it feeds.
type Server struct {
	ln         net.Listener
	dispatcher Dispatcher
}

// Listen binds TCP on addr (host:port) with address reuse and returns
// a Server ready to Serve. Address reuse mirrors the original
// networking.py's SO_REUSEADDR — Go's net package sets this by default
// for TCP listeners on most platforms.
func Listen(addr string, dispatcher Dispatcher) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, dispatcher: dispatcher}, nil
}

// Addr returns the address the server is actually listening on —
// useful when addr was ":0" for an ephemeral test port.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve runs the single accept loop. Each accepted connection is
// handled on its own goroutine (spec.md §4.4/§5). Returns nil when the
// listener is closed by Close — that is normal shutdown, not an error
// (spec.md §4.4/§7's AcceptLoopClosed).
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Printf("transport: accept loop stopped")
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close closes the listening socket, unblocking Serve's accept loop.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()

	buf := make([]byte, maxFrameBytes)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		return // empty/aborted connection — nothing to decode
	}

	msg, err := wire.Decode(buf[:n])
	if err != nil {
		log.Printf("transport: dropping connection from %s: %v", remote, err)
		return
	}

	log.Printf("transport: received %s from %s", msg, remote)
	s.dispatcher.Handle(msg, remote)
}
