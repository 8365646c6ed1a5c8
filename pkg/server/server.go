package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/auth"
	"github.com/agencycal/calib/pkg/config"
	"github.com/agencycal/calib/pkg/events"
	"github.com/agencycal/calib/pkg/store"
)

const shutdownTimeout = 5 * time.Second

// Server serves the agency API. All state is carried on the struct.
type Server struct {
	conf      config.Config
	store     store.Store
	hub       *events.EventHub
	scheduler *Scheduler
	router    *gin.Engine

	now func() time.Time
}

// New wires the API around conf and st. The caller owns st.
func New(conf config.Config, st store.Store) *Server {
	s := &Server{
		conf:  conf,
		store: st,
		hub:   events.NewEventHub(),
		now:   time.Now,
	}
	s.scheduler = NewScheduler(s.remind, s.precheck, s.onUpcoming, s.onError)
	s.router = s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Events exposes the hub so embedders can observe server events.
func (s *Server) Events() *events.EventHub {
	return s.hub
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	api := router.Group("/api")
	api.GET("/version", s.getVersion)

	users := api.Group("/users")
	users.POST("/register", s.optionalAuth(), s.register)
	users.POST("/login", s.login)
	users.GET("/me", s.requireAuth(), s.me)

	agencies := api.Group("/agencies", s.requireAuth())
	agencies.GET("", s.listAgencies)
	agencies.GET("/due", s.listDue)
	agencies.POST("", s.createAgency)
	agencies.GET("/:id", s.getAgency)
	agencies.PATCH("/:id", s.updateAgency)
	agencies.POST("/:id/done", s.markDone)
	agencies.DELETE("/:id", requireRole(auth.RoleAdmin), s.deleteAgency)

	reminder := api.Group("/reminder", s.requireAuth())
	reminder.GET("", s.getReminder)
	reminder.PUT("", requireRole(auth.RoleAdmin), s.setReminder)
	reminder.POST("/postpone", requireRole(auth.RoleAdmin), s.postponeReminder)
	reminder.POST("/skip", requireRole(auth.RoleAdmin), s.skipReminder)

	api.GET("/events", s.requireAuth(), s.streamEvents)

	return router
}

func (s *Server) issuer() *auth.Issuer {
	return auth.NewIssuer(s.conf.TokenSecret(), s.conf.TokenTTL())
}

// ensureSecret generates and persists a signing secret on first start.
func ensureSecret(conf config.Config) error {
	if conf.TokenSecret() != "" {
		return nil
	}
	secret, err := auth.GenerateSecret()
	if err != nil {
		return err
	}
	conf.SetTokenSecret(secret)
	if err := conf.Save(); err != nil {
		return pkgerrors.Wrap(err, "failed to save generated token secret")
	}
	logrus.Info("generated a new token signing secret")
	return nil
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func Run(configPath string) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	if err := ensureSecret(conf); err != nil {
		return err
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	st, err := store.NewSQLite(conf.DatabasePath())
	if err != nil {
		return err
	}

	s := New(conf, st)
	s.applyReminderConfig()
	s.scheduler.Start()

	// Receive SIGHUP to reload config
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			s.applyReminderConfig()
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l, err := net.Listen("tcp", conf.Listen())
	if err != nil {
		s.scheduler.Stop()
		_ = st.Close()
		return pkgerrors.Wrapf(err, "failed to listen on %s", conf.Listen())
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-serveErr:
		runErr = pkgerrors.Wrap(err, "http server failed")
	}

	s.Shutdown(srv)

	logrus.Info("closing database")
	if err := st.Close(); err != nil {
		logrus.Errorf("failed to close database: %v", err)
	}

	logrus.Info("exiting")
	return runErr
}

// Shutdown stops the HTTP server, event streams and the reminder.
func (s *Server) Shutdown(srv *http.Server) {
	logrus.Info("shutting down http server")
	// Streams only end when their subscription closes.
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}

	logrus.Info("stopping reminder")
	s.scheduler.Stop()
}
