package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddrm/pse25/internal/protocol"
)

// Stream is a connection to /v1/stream.
type Stream struct {
	conn *websocket.Conn
}

// StreamURL turns an HTTP base URL into the stream endpoint.
func StreamURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/stream"
	return u.String(), nil
}

// Dial connects to the stream at addr.
func Dial(ctx context.Context, addr string) (*Stream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Close closes the stream connection.
func (s *Stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// SendHello announces the client. The server answers with hello_ack.
func (s *Stream) SendHello(clientName string) error {
	return s.conn.WriteJSON(protocol.HelloMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHello, ""),
		ClientName:  clientName,
	})
}

// SendStartRun asks for a run start over the stream. The answer arrives as
// a start_result with the same request id.
func (s *Stream) SendStartRun(pluginID int, entryName string) (string, error) {
	requestID := fmt.Sprintf("req_%d", time.Now().UnixNano())
	err := s.conn.WriteJSON(protocol.StartRunMessage{
		BaseMessage: protocol.NewBase(protocol.TypeStartRun, requestID),
		PluginID:    pluginID,
		EntryName:   entryName,
	})
	return requestID, err
}

// Read blocks for the next server message and returns it decoded into its
// protocol type. Unknown types are returned as *protocol.BaseMessage.
func (s *Stream) Read() (interface{}, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses one server message.
func Decode(data []byte) (interface{}, error) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}

	var msg interface{}
	switch base.Type {
	case protocol.TypeSnapshot:
		msg = &protocol.SnapshotMessage{}
	case protocol.TypeRun:
		msg = &protocol.RunMessage{}
	case protocol.TypeLog:
		msg = &protocol.LogMessage{}
	case protocol.TypeHelloAck:
		msg = &protocol.HelloAckMessage{}
	case protocol.TypeStartResult:
		msg = &protocol.StartResultMessage{}
	case protocol.TypeError:
		msg = &protocol.ErrorMessage{}
	default:
		return &base, nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", base.Type, err)
	}
	return msg, nil
}
