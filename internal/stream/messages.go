// Package stream is the websocket transport for realtime coaching
// sessions: it decodes inbound frame batches, drives the session's
// analysis cycle, and fans advice and telemetry out to every attached
// client.
package stream

import (
	"github.com/framewise/shotcoach/internal/model"
)

// Inbound message types.
const (
	msgFrames    = "frames"
	msgHeartbeat = "heartbeat"
	msgStatus    = "status"
)

// Outbound message types.
const (
	msgConnected    = "connected"
	msgAdvice       = "advice"
	msgTelemetry    = "telemetry"
	msgFrameAck     = "frame_ack"
	msgHeartbeatAck = "heartbeat_ack"
	msgError        = "error"
)

// inboundMessage is the envelope for all client messages. Fields beyond
// Type are populated per message type.
type inboundMessage struct {
	Type string `json:"type"`

	// frames
	Frames     []string  `json:"frames,omitempty"`
	FPS        float64   `json:"fps,omitempty"`
	VideoTimeS float64   `json:"video_time_s,omitempty"`
	Beats      []float64 `json:"beats,omitempty"`
}

type connectedMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	ClientID    string `json:"client_id"`
	TimestampMS int64  `json:"timestamp"`
}

type heartbeatMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	TimestampMS int64  `json:"timestamp"`
}

type heartbeatAckMessage struct {
	Type        string `json:"type"`
	TimestampMS int64  `json:"timestamp"`
}

type frameAckMessage struct {
	Type              string  `json:"type"`
	FrameCount        int     `json:"frame_count"`
	Status            string  `json:"status,omitempty"`
	AnalysisLatencyMS float64 `json:"analysis_latency_ms,omitempty"`
	TimestampMS       int64   `json:"timestamp"`
}

// adviceMessage wraps one advice payload with its wire type.
type adviceMessage struct {
	Type string `json:"type"`
	model.AdvicePayload
}

type telemetryMessage struct {
	Type                string  `json:"type"`
	AvgSpeedPxFrame     float64 `json:"avg_speed_px_frame"`
	SpeedVariance       float64 `json:"speed_variance"`
	MotionSmoothness    float64 `json:"motion_smoothness"`
	PrimaryDirectionDeg float64 `json:"primary_direction_deg"`
	SubjectOccupancy    float64 `json:"subject_occupancy"`
	Confidence          float64 `json:"confidence"`
	TimestampMS         int64   `json:"timestamp"`
}

type errorMessage struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Details     string `json:"details,omitempty"`
	TimestampMS int64  `json:"timestamp"`
}

// Error codes pushed to clients. Non-recoverable codes require a fresh
// session.
const (
	CodeCameraAccessDenied = "CAMERA_ACCESS_DENIED"
	CodeAnalysisTimeout    = "ANALYSIS_TIMEOUT"
	CodeConnectionLost     = "CONNECTION_LOST"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeResourceExhausted  = "RESOURCE_EXHAUSTED"
	CodeParseError         = "PARSE_ERROR"
	CodeInvalidFrameBuffer = "INVALID_FRAME_BUFFER"
)

type errorInfo struct {
	message     string
	recoverable bool
}

var errorCatalog = map[string]errorInfo{
	CodeCameraAccessDenied: {"无法访问摄像头，请检查权限设置", true},
	CodeAnalysisTimeout:    {"分析超时，正在切换到轻量模式", true},
	CodeConnectionLost:     {"连接已断开，正在重连...", true},
	CodeSessionExpired:     {"会话已过期，请重新扫码", false},
	CodeResourceExhausted:  {"设备资源不足，建议关闭其他应用", true},
	CodeParseError:         {"消息格式错误，无法解析", true},
	CodeInvalidFrameBuffer: {"帧缓冲无效，请重新发送", true},
}

// lookupError resolves a code to its client-facing text; unknown codes
// fall back to a generic recoverable error.
func lookupError(code string) errorInfo {
	if info, ok := errorCatalog[code]; ok {
		return info
	}
	return errorInfo{message: "未知错误", recoverable: true}
}
