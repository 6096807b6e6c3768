package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/rate"
	"github.com/trezcool/ada/core/receipt"
	"github.com/trezcool/ada/core/report"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/core/user"
)

type (
	// AuditQuerier reads the audit trail.
	AuditQuerier interface {
		Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
	}

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validator      *core.Validator
		DisableReqLogs bool

		Users    *user.Service
		Students *student.Service
		Fees     *fee.Service
		Rates    *rate.Service
		Payments *payment.Service
		Receipts *receipt.Renderer
		Reports  *report.Service
		Audit    AuditQuerier
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		opts     Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
		s.app.Logger.SetLevel(log.ERROR)
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf.SecretKey))

	registerAuthAPI(v1, jwt, s.opts.Conf, s.opts.Users, s.opts.Validator)
	registerStudentAPI(v1, jwt, s.opts)
	registerLedgerAPI(v1, jwt, s.opts)
	registerRateAPI(v1, jwt, s.opts.Rates)
	registerReportAPI(v1, jwt, s.opts.Reports, s.opts.Audit)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
