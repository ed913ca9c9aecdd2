package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/framewise/shotcoach/internal/model"
	"github.com/framewise/shotcoach/internal/session"
)

// Config holds the websocket transport settings.
type Config struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	// MaxMessageBytes bounds one inbound message; a ten-frame JPEG batch
	// at capture resolution stays well under this.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
}

// DefaultConfig returns the standard transport settings.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		WriteTimeout:    5 * time.Second,
		MaxMessageBytes: 16 << 20,
	}
}

// AdviceObserver is notified of every advice payload broadcast to a
// session, after delivery.
type AdviceObserver func(payload model.AdvicePayload)

// CycleObserver is notified of every completed analysis cycle with its
// latency in milliseconds.
type CycleObserver func(latencyMS float64)

// Handler upgrades websocket connections and runs the per-connection
// message loop.
type Handler struct {
	cfg      Config
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	observeAdvice AdviceObserver
	observeCycle  CycleObserver
}

// NewHandler builds a websocket handler; a zero config gets defaults.
func NewHandler(cfg Config, sessions *session.Manager, logger zerolog.Logger) *Handler {
	if cfg.WriteTimeout == 0 {
		cfg = DefaultConfig()
	}
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// SetAdviceObserver installs the broadcast observer. Must be set before
// serving connections.
func (h *Handler) SetAdviceObserver(fn AdviceObserver) { h.observeAdvice = fn }

// SetCycleObserver installs the analysis cycle observer. Must be set
// before serving connections.
func (h *Handler) SetCycleObserver(fn CycleObserver) { h.observeCycle = fn }

// wsClient serializes writes to one websocket connection.
type wsClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func (c *wsClient) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// ServeWS upgrades the request and runs the connection until the client
// disconnects. The device query parameter selects the advice profile.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	device := model.DeviceStandard
	if r.URL.Query().Get("device") == string(model.DeviceProfessional) {
		device = model.DeviceProfessional
	}

	h.sessions.Create(sessionID, device)
	clientID := uuid.NewString()

	client := &wsClient{conn: conn, writeTimeout: h.cfg.WriteTimeout}
	h.sessions.AddClient(sessionID, clientID, client)
	defer h.sessions.RemoveClient(sessionID, clientID)

	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	if err := client.Send(connectedMessage{
		Type:        msgConnected,
		SessionID:   sessionID,
		ClientID:    clientID,
		TimestampMS: time.Now().UnixMilli(),
	}); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("welcome send failed")
		return
	}

	done := make(chan struct{})
	defer close(done)
	go h.heartbeatLoop(client, sessionID, done)

	// Reads must arrive within three heartbeat intervals or the
	// connection is considered dead.
	readTimeout := 3 * h.sessions.HeartbeatInterval()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("connection lost")
			}
			return
		}
		h.handleMessage(client, sessionID, clientID, raw)
	}
}

// heartbeatLoop pushes server heartbeats until the connection ends.
func (h *Handler) heartbeatLoop(client *wsClient, sessionID string, done <-chan struct{}) {
	ticker := time.NewTicker(h.sessions.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := client.Send(heartbeatMessage{
				Type:        msgHeartbeat,
				SessionID:   sessionID,
				TimestampMS: time.Now().UnixMilli(),
			})
			if err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleMessage(client *wsClient, sessionID, clientID string, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(client, CodeParseError, err.Error())
		return
	}

	// Any inbound traffic counts as client liveness.
	h.sessions.Heartbeat(sessionID, clientID)

	switch msg.Type {
	case msgFrames:
		h.handleFrames(client, sessionID, msg)
	case msgHeartbeat:
		h.send(client, heartbeatAckMessage{
			Type:        msgHeartbeatAck,
			TimestampMS: time.Now().UnixMilli(),
		})
	case msgStatus:
		if snap, ok := h.sessions.Snapshot(sessionID); ok {
			h.send(client, struct {
				Type string `json:"type"`
				session.Snapshot
			}{Type: msgStatus, Snapshot: snap})
		}
	default:
		h.logger.Warn().Str("type", msg.Type).Str("session_id", sessionID).Msg("unknown message type")
	}
}

// handleFrames runs one analysis cycle over the inbound batch and fans
// advice and telemetry out to all clients of the session.
func (h *Handler) handleFrames(client *wsClient, sessionID string, msg inboundMessage) {
	if len(msg.Frames) == 0 {
		h.sendError(client, CodeInvalidFrameBuffer, "")
		return
	}

	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		h.sendError(client, CodeSessionExpired, "")
		return
	}

	now := time.Now()
	out := sess.Analyze(msg.Frames, msg.FPS, msg.VideoTimeS, msg.Beats, now)

	if !out.Ready {
		h.send(client, frameAckMessage{
			Type:        msgFrameAck,
			FrameCount:  out.DecodedFrames,
			Status:      "insufficient_frames",
			TimestampMS: now.UnixMilli(),
		})
		return
	}

	h.send(client, frameAckMessage{
		Type:              msgFrameAck,
		FrameCount:        out.DecodedFrames,
		AnalysisLatencyMS: out.Result.AnalysisLatencyMS,
		TimestampMS:       now.UnixMilli(),
	})
	if h.observeCycle != nil {
		h.observeCycle(out.Result.AnalysisLatencyMS)
	}

	for _, payload := range out.Advice {
		h.sessions.Broadcast(sessionID, adviceMessage{Type: msgAdvice, AdvicePayload: payload})
		if h.observeAdvice != nil {
			h.observeAdvice(payload)
		}
	}

	h.sessions.Broadcast(sessionID, telemetryMessage{
		Type:                msgTelemetry,
		AvgSpeedPxFrame:     out.Result.AvgSpeedPxFrame,
		SpeedVariance:       out.Result.SpeedVariance,
		MotionSmoothness:    out.Result.MotionSmoothness,
		PrimaryDirectionDeg: out.Result.PrimaryDirectionDeg,
		SubjectOccupancy:    out.Result.SubjectOccupancy,
		Confidence:          out.Result.Confidence,
		TimestampMS:         now.UnixMilli(),
	})
}

func (h *Handler) send(client *wsClient, v any) {
	if err := client.Send(v); err != nil {
		h.logger.Warn().Err(err).Msg("send failed")
	}
}

func (h *Handler) sendError(client *wsClient, code, details string) {
	info := lookupError(code)
	h.send(client, errorMessage{
		Type:        msgError,
		Code:        code,
		Message:     info.message,
		Recoverable: info.recoverable,
		Details:     details,
		TimestampMS: time.Now().UnixMilli(),
	})
}
