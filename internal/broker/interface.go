package broker

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is one JSON-RPC-shaped message on a device connection. Outbound
// requests carry id/method/params; inbound responses carry the echoed
// id plus either a result or an error object. Devices also push
// unsolicited method frames (NotifyStatus and friends), which the
// broker drops after refreshing liveness.
type Frame struct {
	ID     any             `json:"id,omitempty"`
	Src    string          `json:"src,omitempty"`
	Dst    string          `json:"dst,omitempty"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object a device returns instead of a result.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// DeviceInfo describes one live device connection.
type DeviceInfo struct {
	DeviceID string    `json:"device_id"`
	LastSeen time.Time `json:"last_seen"`
}

// Transport is the write half of a device connection. The WebSocket
// listener hands one to the broker per device; tests substitute fakes.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}
