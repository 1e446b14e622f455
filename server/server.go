// Package server is the shell that owns the TCP acceptor, the shared
// cache, the ID counter, and the optional audit log and admin API, and
// spawns one goroutine per accepted connection. It is the Go translation
// of the reference Server class, whose fixed pool of worker threads
// draining a shared io_service becomes, here, the Go scheduler
// multiplexing one goroutine per connection over GOMAXPROCS threads.
package server

import (
	"context"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/fenwicklabs/proxycache/adminapi"
	"github.com/fenwicklabs/proxycache/auditlog"
	"github.com/fenwicklabs/proxycache/cachestore"
	"github.com/fenwicklabs/proxycache/config"
	"github.com/fenwicklabs/proxycache/connection"
)

// Server owns every long-lived resource the proxy needs and runs its
// accept loop until Shutdown is called or the listener fails.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	listener net.Listener
	cache    *cachestore.Store
	ids      *connection.IDCounter
	audit    *auditlog.Sink
	admin    *adminapi.Server
}

// New constructs a Server bound to cfg.ListenPort but does not yet start
// accepting connections; call Run for that.
func New(cfg config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:   cfg,
		log:   log,
		cache: cachestore.New(cfg.CacheSlots),
		ids:   &connection.IDCounter{},
	}

	if cfg.AuditDBPath != "" {
		sink, err := auditlog.Open(cfg.AuditDBPath, log)
		if err != nil {
			return nil, err
		}
		s.audit = sink
	}

	if cfg.AdminPort != 0 {
		s.admin = adminapi.New(cfg.AdminPort, s.cache, s.audit, log)
	}

	ln, err := net.Listen("tcp", listenAddr(cfg.ListenPort))
	if err != nil {
		return nil, err
	}
	s.listener = ln

	return s, nil
}

func listenAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// Run starts the admin API (if configured) and the accept loop. It blocks
// until ctx is canceled, logging a NOTE on entry and on exit exactly as
// the reference server does. It returns as soon as the listener is closed;
// it does not wait for connection goroutines it has already spawned.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Msg("NOTE server started")

	if s.admin != nil {
		go s.admin.Run()
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("NOTE server exited")
				return nil
			default:
				s.log.Error().Err(err).Msg("ERROR accept failed")
				return err
			}
		}
		go s.serve(conn)
	}
}

// serve drives one accepted connection, recovering from any panic inside
// the connection driver so that a single misbehaving request only drops
// its own connection rather than taking down the accept loop — the direct
// analogue of the reference's worker thread catching and logging, then
// resuming io_service.run().
func (s *Server) serve(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("ERROR recovered from panic in connection handler")
			conn.Close()
		}
	}()

	deps := connection.Deps{
		Cache:        s.cache,
		IDs:          s.ids,
		Logger:       s.log,
		Dialer:       &net.Dialer{Timeout: s.cfg.ConnDeadline},
		ConnDeadline: s.cfg.ConnDeadline,
		Audit:        s.audit,
	}
	// s.admin is a typed *adminapi.Server; only assign it to the Deps.Admin
	// interface field when non-nil, or a nil pointer wrapped in a non-nil
	// interface would make every deps.Admin != nil check in the connection
	// driver true.
	if s.admin != nil {
		deps.Admin = s.admin
	}
	connection.Serve(conn, deps)
}

// Shutdown closes the listener, the admin API (if running), and the audit
// sink (if open). It does not close connections already in flight: each
// keeps serving requests on its own socket until the peer disconnects, an
// I/O error or deadline ends it, or it is handed to a tunnel.
func (s *Server) Shutdown() error {
	err := s.listener.Close()
	if s.admin != nil {
		s.admin.Shutdown(context.Background())
	}
	if s.audit != nil {
		s.audit.Close()
	}
	return err
}
