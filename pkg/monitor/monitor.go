package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/metrics"
	"github.com/unraidmate/console/pkg/models"
)

// maxHistory bounds the kept samples; 12 hours at the default interval
const maxHistory = 1440

// ClientSource hands out the shared client
type ClientSource interface {
	Current() *graphql.Client
}

// SettingsSource supplies the polling interval
type SettingsSource interface {
	Get(ctx context.Context) models.AppSettings
}

// Status is the last known reachability of the active server
type Status struct {
	Online    bool           `json:"online"`
	Endpoint  string         `json:"endpoint,omitempty"`
	CheckedAt time.Time      `json:"checkedAt"`
	Error     string         `json:"error,omitempty"`
	ErrorKind auth.ErrorKind `json:"errorKind,omitempty"`
}

// Monitor polls the active server with the health query. The interval is
// re-read from settings before every wait so changes apply without a restart.
type Monitor struct {
	clients  ClientSource
	settings SettingsSource
	unit     time.Duration

	mu        sync.Mutex
	last      *Status
	history   []Status
	listeners []func(Status)
	cancel    context.CancelFunc
	wake      chan struct{}
}

// New creates a monitor but does not start it
func New(clients ClientSource, settings SettingsSource) *Monitor {
	return &Monitor{
		clients:  clients,
		settings: settings,
		unit:     time.Second,
		wake:     make(chan struct{}, 1),
	}
}

// OnChange registers fn to run when Online or the endpoint changes
func (m *Monitor) OnChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start begins polling. Call Stop to cancel.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop cancels the polling loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Poke requests a check without waiting for the next tick. Used after the
// client is rebuilt.
func (m *Monitor) Poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Last returns the most recent status, zero before the first check
func (m *Monitor) Last() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Status{}
	}
	return *m.last
}

// History returns the recorded samples, oldest first. A change of endpoint
// starts a new history.
func (m *Monitor) History() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Status(nil), m.history...)
}

// Check pings the current client once and records the result
func (m *Monitor) Check(ctx context.Context) Status {
	client := m.clients.Current()
	status := Status{Endpoint: client.Endpoint(), CheckedAt: time.Now()}

	if client.Configured() {
		if err := client.Ping(ctx); err != nil {
			classified := auth.ClassifyError(err)
			status.Error = classified.Message()
			status.ErrorKind = classified.Kind
		} else {
			status.Online = true
		}
	}

	if status.Online {
		metrics.ServerOnline.Set(1)
	} else {
		metrics.ServerOnline.Set(0)
	}

	m.mu.Lock()
	changed := m.last == nil || m.last.Online != status.Online || m.last.Endpoint != status.Endpoint
	if m.last != nil && m.last.Endpoint != status.Endpoint {
		m.history = nil
	}
	m.last = &status
	m.history = append(m.history, status)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	listeners := append([]func(Status){}, m.listeners...)
	m.mu.Unlock()

	if changed {
		if status.Online {
			log.Printf("[monitor] %s is online", status.Endpoint)
		} else if status.Endpoint != "" {
			log.Printf("[monitor] %s is offline: %s", status.Endpoint, status.ErrorKind)
		}
		for _, fn := range listeners {
			fn(status)
		}
	}
	return status
}

func (m *Monitor) run(ctx context.Context) {
	for {
		m.Check(ctx)

		interval := time.Duration(m.settings.Get(ctx).Normalize().PollingInterval) * m.unit
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}
