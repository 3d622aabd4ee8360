package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"tunesync/internal/config"
	"tunesync/internal/logging"
	"tunesync/internal/runstate"
	"tunesync/internal/supervisor"
)

// Daemon ties the supervisor, history store, and API server together and
// enforces single-instance execution through a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	sup     *supervisor.Supervisor
	history *runstate.History
	api     *apiServer
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool                `json:"running"`
	PID           int                 `json:"pid"`
	HistoryDBPath string              `json:"history_db_path"`
	LockFilePath  string              `json:"lock_file_path"`
	Runs          runstate.Stats      `json:"runs"`
	RecentRuns    []runstate.RunState `json:"recent_runs,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, sup *supervisor.Supervisor, history *runstate.History, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || sup == nil || logger == nil {
		return nil, errors.New("daemon requires config, supervisor, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "tunesyncd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		sup:      sup,
		history:  history,
		logPath:  filepath.Join(cfg.Paths.LogDir, "tunesync.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tunesync daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("tunesync daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop drains in-flight runs, stops the API server, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.sup.Close(drainCtx); err != nil {
		d.logger.Warn("supervisor drain incomplete", logging.Error(err))
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tunesync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the bound API address, empty until Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
	}
	if d.history != nil {
		status.HistoryDBPath = d.history.Path()
		if stats, err := d.history.Stats(ctx); err == nil {
			status.Runs = stats
		} else {
			d.logger.Warn("history stats unavailable", logging.Error(err))
		}
		if recent, err := d.history.List(ctx, 10); err == nil {
			status.RecentRuns = recent
		}
	}
	return status
}
