// Package session owns realtime session state: the per-session analyzer
// and advice engine, the attached client set, heartbeat liveness,
// reconnection backoff, and advice fan-out.
package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/advice"
	"github.com/framewise/shotcoach/internal/hysteresis"
	"github.com/framewise/shotcoach/internal/model"
	"github.com/framewise/shotcoach/internal/realtime"
	"github.com/framewise/shotcoach/internal/smoothing"
)

// ErrReconnectExhausted is returned once a client has spent its
// reconnection attempts for a session.
var ErrReconnectExhausted = errors.New("session: reconnect attempts exhausted")

// latencyEMAAlpha weighs the newest latency sample in the rolling
// average.
const latencyEMAAlpha = 0.2

// Config holds session lifecycle settings.
type Config struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`

	// SessionTimeout reaps sessions with no activity; EmptyGrace reaps
	// sessions that have had no clients for that long.
	SessionTimeout  time.Duration `yaml:"session_timeout"`
	EmptyGrace      time.Duration `yaml:"empty_grace"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	InitialReconnectDelay time.Duration `yaml:"initial_reconnect_delay"`
	MaxReconnectDelay     time.Duration `yaml:"max_reconnect_delay"`
	ReconnectMultiplier   float64       `yaml:"reconnect_multiplier"`

	Analyzer realtime.Config `yaml:"analyzer"`
	Advice   advice.Config   `yaml:"advice"`
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:     5 * time.Second,
		HeartbeatTimeout:      15 * time.Second,
		SessionTimeout:        5 * time.Minute,
		EmptyGrace:            60 * time.Second,
		CleanupInterval:       60 * time.Second,
		MaxReconnectAttempts:  5,
		InitialReconnectDelay: time.Second,
		MaxReconnectDelay:     30 * time.Second,
		ReconnectMultiplier:   2.0,
		Analyzer:              realtime.DefaultConfig(),
		Advice:                advice.DefaultConfig(),
	}
}

// Client is the delivery end of one attached connection. Send failures
// are logged per client and never cancel the fan-out.
type Client interface {
	Send(v any) error
}

type clientConn struct {
	id            string
	client        Client
	connectedAt   time.Time
	lastHeartbeat time.Time
}

// CycleOutput is the result of one analysis cycle: the raw telemetry
// and the advice generated from it.
type CycleOutput struct {
	Result model.RealtimeAnalysisResult
	Advice []model.AdvicePayload
	// DecodedFrames counts frames decoded from the inbound batch.
	DecodedFrames int
	// Ready is false when the buffer is still below the analysis
	// minimum; Result and Advice are zero then.
	Ready bool
}

// Session is one realtime coaching session. Client-set mutation is
// serialized by mu; the analysis chain is serialized by analysisMu so
// a new buffer never overtakes a running cycle.
type Session struct {
	ID        string
	CreatedAt time.Time
	Device    model.DeviceClass

	analyzer *realtime.Analyzer
	engine   *advice.Engine

	mu           sync.RWMutex
	clients      map[string]*clientConn
	lastActivity time.Time
	emptySince   time.Time

	reconnectDelays   map[string]time.Duration
	reconnectAttempts map[string]int

	analysisMu    sync.Mutex
	totalAnalyses int64
	emaLatencyMS  float64
}

// Snapshot is the point-in-time session status served to clients.
type Snapshot struct {
	SessionID     string          `json:"session_id"`
	CreatedAt     time.Time       `json:"created_at"`
	LastActivity  time.Time       `json:"last_activity"`
	TotalClients  int             `json:"total_clients"`
	ActiveClients int             `json:"active_clients"`
	TotalAnalyses int64           `json:"total_analyses"`
	AvgLatencyMS  float64         `json:"avg_latency_ms"`
	MotionState   model.MotionType `json:"motion_state"`
}

// Analyze feeds one frame batch through the session's analyzer and
// advice engine. fps times the frames; videoTimeS is the recording
// position used for beat advice.
func (s *Session) Analyze(b64Frames []string, fps, videoTimeS float64, beats []float64, now time.Time) CycleOutput {
	s.analysisMu.Lock()
	defer s.analysisMu.Unlock()

	decoded := s.analyzer.AddBase64Frames(b64Frames, fps)
	if !s.analyzer.BufferReady() {
		return CycleOutput{DecodedFrames: decoded}
	}

	result := s.analyzer.AnalyzeBuffered()
	payloads := s.engine.Generate(result, advice.Options{
		Now:        now,
		VideoTimeS: videoTimeS,
		Beats:      beats,
		Device:     s.Device,
	})

	s.totalAnalyses++
	if s.totalAnalyses == 1 {
		s.emaLatencyMS = result.AnalysisLatencyMS
	} else {
		s.emaLatencyMS = latencyEMAAlpha*result.AnalysisLatencyMS + (1-latencyEMAAlpha)*s.emaLatencyMS
	}

	return CycleOutput{
		Result:        result,
		Advice:        payloads,
		DecodedFrames: decoded,
		Ready:         true,
	}
}

// Manager owns all sessions. All exported methods are safe for
// concurrent use.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	onExpired func(sessionID string)

	now func() time.Time
}

// NewManager builds a session manager; a zero config gets defaults.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.HeartbeatInterval == 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.With().Str("component", "session_manager").Logger(),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetExpiredCallback installs the callback invoked after a session is
// reaped. Must be set before Run.
func (m *Manager) SetExpiredCallback(fn func(sessionID string)) { m.onExpired = fn }

// HeartbeatInterval exposes the configured server heartbeat cadence.
func (m *Manager) HeartbeatInterval() time.Duration { return m.cfg.HeartbeatInterval }

// Create returns the session for id, creating it if needed. Create is
// idempotent: an existing session is returned untouched.
func (m *Manager) Create(id string, device model.DeviceClass) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}

	now := m.now()
	s := &Session{
		ID:                id,
		CreatedAt:         now,
		Device:            device,
		analyzer:          realtime.NewAnalyzer(m.cfg.Analyzer, m.logger),
		engine:            advice.NewEngine(m.cfg.Advice, hysteresis.DefaultConfig(), smoothing.DefaultConfig(), m.logger),
		clients:           make(map[string]*clientConn),
		lastActivity:      now,
		emptySince:        now,
		reconnectDelays:   make(map[string]time.Duration),
		reconnectAttempts: make(map[string]int),
	}
	m.sessions[id] = s
	m.logger.Info().Str("session_id", id).Msg("session created")
	return s
}

// Get returns the session and refreshes its activity clock.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// Delete removes a session outright.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.logger.Info().Str("session_id", id).Msg("session deleted")
	}
}

// Count returns the live session count.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SessionIDs lists all live session ids.
func (m *Manager) SessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// AddClient attaches a client to a session and resets its reconnection
// state. Returns false when the session does not exist.
func (m *Manager) AddClient(sessionID, clientID string, client Client) bool {
	s, ok := m.Get(sessionID)
	if !ok {
		return false
	}

	now := m.now()
	s.mu.Lock()
	s.clients[clientID] = &clientConn{
		id:            clientID,
		client:        client,
		connectedAt:   now,
		lastHeartbeat: now,
	}
	delete(s.reconnectDelays, clientID)
	delete(s.reconnectAttempts, clientID)
	s.lastActivity = now
	s.emptySince = time.Time{}
	s.mu.Unlock()

	m.logger.Info().Str("session_id", sessionID).Str("client_id", clientID).Msg("client joined")
	return true
}

// RemoveClient detaches a client; the empty-grace clock starts when the
// last one leaves.
func (m *Manager) RemoveClient(sessionID, clientID string) {
	s, ok := m.Get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.clients, clientID)
	if len(s.clients) == 0 {
		s.emptySince = m.now()
	}
	s.mu.Unlock()
	m.logger.Info().Str("session_id", sessionID).Str("client_id", clientID).Msg("client left")
}

// Heartbeat refreshes a client's liveness. Returns false when either the
// session or the client is unknown.
func (m *Manager) Heartbeat(sessionID, clientID string) bool {
	s, ok := m.Get(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.clients[clientID]
	if !ok {
		return false
	}
	conn.lastHeartbeat = m.now()
	return true
}

// ReconnectDelay returns the wait before the client's next reconnection
// attempt, or ErrReconnectExhausted once attempts are spent. The delay
// grows by the configured multiplier, capped, with ±20% jitter.
func (m *Manager) ReconnectDelay(sessionID, clientID string) (time.Duration, error) {
	s, ok := m.Get(sessionID)
	if !ok {
		return m.cfg.InitialReconnectDelay, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconnectAttempts[clientID]++
	if s.reconnectAttempts[clientID] > m.cfg.MaxReconnectAttempts {
		return 0, ErrReconnectExhausted
	}

	current, ok := s.reconnectDelays[clientID]
	if !ok {
		current = m.cfg.InitialReconnectDelay
	} else {
		current = time.Duration(float64(current) * m.cfg.ReconnectMultiplier)
		if current > m.cfg.MaxReconnectDelay {
			current = m.cfg.MaxReconnectDelay
		}
	}
	s.reconnectDelays[clientID] = current

	jitter := 1 + 0.2*(2*rand.Float64()-1)
	return time.Duration(float64(current) * jitter), nil
}

// Broadcast delivers a payload to every live client of a session.
// Individual send failures are logged and skipped.
func (m *Manager) Broadcast(sessionID string, v any) int {
	s, ok := m.Get(sessionID)
	if !ok {
		return 0
	}

	now := m.now()
	s.mu.RLock()
	targets := make([]*clientConn, 0, len(s.clients))
	for _, conn := range s.clients {
		if now.Sub(conn.lastHeartbeat) <= m.cfg.HeartbeatTimeout {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.client.Send(v); err != nil {
			m.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("client_id", conn.id).
				Msg("client send failed")
			continue
		}
		delivered++
	}
	return delivered
}

// Snapshot returns session status, or false when the session is
// unknown.
func (m *Manager) Snapshot(sessionID string) (Snapshot, bool) {
	s, ok := m.Get(sessionID)
	if !ok {
		return Snapshot{}, false
	}

	now := m.now()
	s.mu.RLock()
	total := len(s.clients)
	active := 0
	for _, conn := range s.clients {
		if now.Sub(conn.lastHeartbeat) <= m.cfg.HeartbeatTimeout {
			active++
		}
	}
	lastActivity := s.lastActivity
	s.mu.RUnlock()

	s.analysisMu.Lock()
	analyses := s.totalAnalyses
	ema := s.emaLatencyMS
	s.analysisMu.Unlock()

	return Snapshot{
		SessionID:     s.ID,
		CreatedAt:     s.CreatedAt,
		LastActivity:  lastActivity,
		TotalClients:  total,
		ActiveClients: active,
		TotalAnalyses: analyses,
		AvgLatencyMS:  ema,
		MotionState:   s.engine.MotionType(),
	}, true
}

// Sweep removes stale clients everywhere and reaps dead sessions:
// those idle past SessionTimeout and those empty past EmptyGrace.
func (m *Manager) Sweep() {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		s.mu.Lock()
		for clientID, conn := range s.clients {
			if now.Sub(conn.lastHeartbeat) > m.cfg.HeartbeatTimeout {
				delete(s.clients, clientID)
				m.logger.Info().Str("session_id", id).Str("client_id", clientID).Msg("stale client removed")
			}
		}
		if len(s.clients) == 0 && s.emptySince.IsZero() {
			s.emptySince = now
		}
		idle := now.Sub(s.lastActivity) > m.cfg.SessionTimeout
		emptyTooLong := !s.emptySince.IsZero() && now.Sub(s.emptySince) > m.cfg.EmptyGrace
		s.mu.Unlock()

		if idle || emptyTooLong {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
		m.logger.Info().Str("session_id", id).Msg("session reaped")
	}
	m.mu.Unlock()

	if m.onExpired != nil {
		for _, id := range expired {
			m.onExpired(id)
		}
	}
}

// Run drives the cleanup sweep until the context ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}
