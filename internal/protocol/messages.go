// Package protocol defines the WebSocket message protocol between bagdesk and
// its UI clients.
package protocol

import (
	"time"

	"github.com/oddrm/pse25/internal/domain"
)

// Message types from client to server
const (
	TypeHello    = "hello"
	TypeStartRun = "start_run"
)

// Message types from server to client
const (
	TypeHelloAck    = "hello_ack"
	TypeSnapshot    = "snapshot"
	TypeRun         = "run"
	TypeLog         = "log"
	TypeStartResult = "start_result"
	TypeError       = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
}

// NewBase stamps a BaseMessage with the current time.
func NewBase(msgType, requestID string) BaseMessage {
	return BaseMessage{Type: msgType, Ts: time.Now().UnixMilli(), RequestID: requestID}
}

// HelloMessage is sent by a client after connecting.
type HelloMessage struct {
	BaseMessage
	ClientName string `json:"client_name,omitempty"`
}

// HelloAckMessage answers hello.
type HelloAckMessage struct {
	BaseMessage
	ConnectionID string `json:"connection_id"`
}

// StartRunMessage asks the server to start a plugin run. An empty entry name
// means a global run.
type StartRunMessage struct {
	BaseMessage
	PluginID  int    `json:"plugin_id"`
	EntryName string `json:"entry_name,omitempty"`
}

// StartResultMessage answers start_run. A rejected start is not an error.
type StartResultMessage struct {
	BaseMessage
	Started bool        `json:"started"`
	Reason  string      `json:"reason,omitempty"`
	Run     *domain.Run `json:"run,omitempty"`
}

// PluginState is a catalog entry as seen by clients.
type PluginState struct {
	domain.PluginDefinition
	Enabled bool `json:"enabled"`
}

// SnapshotMessage is the first message on every connection.
type SnapshotMessage struct {
	BaseMessage
	Plugins []PluginState     `json:"plugins"`
	Runs    []domain.Run      `json:"runs"`
	Logs    []domain.LogEntry `json:"logs"`
}

// RunMessage carries one run event.
type RunMessage struct {
	BaseMessage
	Event domain.RunEventType `json:"event"`
	Run   domain.Run          `json:"run"`
}

// LogMessage carries one new log entry.
type LogMessage struct {
	BaseMessage
	Entry domain.LogEntry `json:"entry"`
}

// ErrorMessage is sent when a client message cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInternalError  = "internal_error"
)
