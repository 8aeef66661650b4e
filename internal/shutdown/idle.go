// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether work outside HTTP requests is in progress. The
// server passes the billing engine's live session count here so a machine
// is never stopped while it is metering a consultation.
type BusyFunc func() bool

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	Timeout       time.Duration // Idle period before shutdown; 0 disables
	CheckInterval time.Duration // Default Timeout/6, clamped to [5s, 30s]
	ExcludePaths  []string      // Path prefixes that don't count as activity
	Busy          BusyFunc
	Logger        *slog.Logger
}

// IdleMonitor tracks request activity and closes Done once the server has
// had no requests and no busy work for Timeout.
type IdleMonitor struct {
	cfg    IdleMonitorConfig
	logger *slog.Logger
	now    func() time.Time

	active       atomic.Int64
	mu           sync.Mutex
	lastActivity time.Time

	done chan struct{}
}

// NewIdleMonitor creates a new idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = min(max(cfg.Timeout/6, 5*time.Second), 30*time.Second)
	}
	return &IdleMonitor{
		cfg:          cfg,
		logger:       cfg.Logger.With("component", "idle-monitor"),
		now:          time.Now,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// Enabled reports whether a timeout is configured.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Done is closed when the idle timeout is reached. It never closes when the
// monitor is disabled.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware counts in-flight requests as activity. Long-lived event
// streams count for as long as they are open.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.active.Add(1)
		m.touch()
		defer func() {
			m.active.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, p := range m.cfg.ExcludePaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = m.now()
	m.mu.Unlock()
}

// Run checks for idleness until ctx is done or the timeout fires.
func (m *IdleMonitor) Run(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Debug("idle monitoring disabled (timeout=0)")
		return
	}
	m.logger.Info("idle monitoring started",
		"timeout", m.cfg.Timeout.String(),
		"exclude_paths", m.cfg.ExcludePaths,
	)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.check() {
				close(m.done)
				return
			}
		}
	}
}

// check returns true when the server has been idle for the timeout. Busy
// work resets the idle clock so the full timeout applies after it ends.
func (m *IdleMonitor) check() bool {
	active := m.active.Load()
	busy := m.cfg.Busy != nil && m.cfg.Busy()
	if active > 0 || busy {
		m.touch()
		return false
	}

	m.mu.Lock()
	idle := m.now().Sub(m.lastActivity)
	m.mu.Unlock()

	if idle < m.cfg.Timeout {
		return false
	}
	m.logger.Info("idle timeout reached, signaling graceful shutdown",
		"idle_time", idle.String(),
		"timeout", m.cfg.Timeout.String(),
	)
	return true
}
