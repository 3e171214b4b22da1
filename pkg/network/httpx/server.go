package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server is a minimal wrapper of the stdlib http server
// with explicit init and teardown rules.
type Server struct {
	http.Server
}

type HandlerFactory func(serv *Server) http.Handler

func NewServer(address string, handler HandlerFactory) (*Server, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, err
	}
	server := &Server{
		Server: http.Server{
			Addr:         address,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
	server.Handler = handler(server)
	return server, nil
}

func (s *Server) Run() error {
	err := s.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.Server.Shutdown(ctx) }
