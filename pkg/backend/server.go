package backend

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/helpdesk/pkg/persistence/chatstore"
)

const (
	DefaultAddr     = ":5000"
	APIPrefix       = "/api"
	shutdownTimeout = 30 * time.Second
)

// Server owns the HTTP listener and the session store behind the API.
type Server struct {
	httpSrv  *http.Server
	sessions chatstore.SessionStore
}

func NewServer(addr string, api http.Handler, sessions chatstore.SessionStore) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	mux := http.NewServeMux()
	mux.Handle(APIPrefix+"/", http.StripPrefix(APIPrefix, api))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions: sessions,
	}
}

func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts the
// server down and closes the session store.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.httpSrv.Addr)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srvCtx, srvCancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer srvCancel()

	eg, egCtx := errgroup.WithContext(srvCtx)

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if s.sessions != nil {
			if err := s.sessions.Close(); err != nil {
				log.Error().Err(err).Msg("session store close error")
			}
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("starting helpdesk api server")
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCancel()
			return errors.Wrap(err, "serve")
		}
		return nil
	})

	return eg.Wait()
}
