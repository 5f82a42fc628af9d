// Package server provides the minimal hosting environment a procedure store
// needs when it runs outside a cluster: a fixed identity, a background chore
// scheduler and configuration access. Cluster capabilities are not
// available and fail with ErrUnsupported.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/weiihann/procbench/config"
)

// ErrUnsupported is returned by every capability the stub does not provide.
var ErrUnsupported = errors.ErrUnsupported

// ServerName identifies the stub the way a region server identifies itself.
type ServerName struct {
	Host      string
	Port      int
	StartCode int64
}

func (n ServerName) String() string {
	return n.Host + "," + strconv.Itoa(n.Port) + "," +
		strconv.FormatInt(n.StartCode, 10)
}

// ZKWatcher is a coordination service session. The stub never returns one.
type ZKWatcher interface {
	Close() error
}

// Connection is a cluster connection. The stub never returns one.
type Connection interface {
	Close() error
}

// CoordinatedStateManager manages cluster-wide coordinated state. The stub
// never returns one.
type CoordinatedStateManager interface {
	Start() error
	Stop()
}

type state int32

const (
	stateRunning state = iota
	stateStopping
)

// Server is the execution stub. It is safe for concurrent use.
type Server struct {
	conf    *config.Configuration
	name    ServerName
	chores  *ChoreService
	logger  *slog.Logger
	state   atomic.Int32
	aborted atomic.Bool
}

// New creates a running Server with its own chore service.
func New(conf *config.Configuration, logger *slog.Logger) *Server {
	name := ServerName{
		Host:      "localhost",
		Port:      12345,
		StartCode: time.Now().UnixMilli(),
	}

	logger = logger.With(slog.String("server", name.String()))

	return &Server{
		conf:   conf,
		name:   name,
		chores: NewChoreService("Cleaner-Chore-Service", logger),
		logger: logger,
	}
}

func (s *Server) ServerName() ServerName {
	return s.name
}

func (s *Server) Configuration() *config.Configuration {
	return s.conf
}

func (s *Server) ChoreService() *ChoreService {
	return s.chores
}

// Abort marks the server aborted and shuts down the chore service.
func (s *Server) Abort(why string, err error) {
	s.aborted.Store(true)

	attrs := []any{slog.String("why", why)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	s.logger.Warn("server aborting", attrs...)
	s.shutdown()
}

func (s *Server) IsAborted() bool {
	return s.aborted.Load()
}

// Stop shuts down the chore service.
func (s *Server) Stop(why string) {
	s.logger.Info("server stopping", slog.String("why", why))
	s.shutdown()
}

// IsStopped always reports false: the stub has no observable stopped state.
func (s *Server) IsStopped() bool {
	return false
}

func (s *Server) shutdown() {
	s.state.CompareAndSwap(int32(stateRunning), int32(stateStopping))
	s.chores.Shutdown()
}

func (s *Server) ZooKeeper() (ZKWatcher, error) {
	return nil, unsupported("ZooKeeper")
}

func (s *Server) Connection() (Connection, error) {
	return nil, unsupported("Connection")
}

func (s *Server) CreateConnection(*config.Configuration) (Connection, error) {
	return nil, unsupported("CreateConnection")
}

func (s *Server) AsyncClusterConnection() (Connection, error) {
	return nil, unsupported("AsyncClusterConnection")
}

func (s *Server) CoordinatedStateManager() (CoordinatedStateManager, error) {
	return nil, unsupported("CoordinatedStateManager")
}

func unsupported(op string) error {
	return fmt.Errorf("server stub: %s: %w", op, ErrUnsupported)
}
