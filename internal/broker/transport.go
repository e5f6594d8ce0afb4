package broker

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 40 * time.Second
	pingPeriod = 30 * time.Second
)

// Listener upgrades inbound HTTP connections to WebSocket and feeds
// their frames into the broker. Shelly Gen2 devices dial out to
// ws://<host>:<listen_port>/ and speak their RPC dialect over the
// resulting connection; the path is irrelevant, every path upgrades.
type Listener struct {
	broker   *Broker
	upgrader websocket.Upgrader
}

func NewListener(b *Broker) *Listener {
	return &Listener{
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are not browsers; there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	l.serve(ws, r.RemoteAddr)
}

// serve runs one connection's read loop. The device's identity comes
// from the first frame's src field; devices that omit it get an
// address-derived id so they can still be polled.
func (l *Listener) serve(ws *websocket.Conn, remoteAddr string) {
	errFactory := errors.New()

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	var first Frame
	if err := ws.ReadJSON(&first); err != nil {
		logger.Warn().Err(err).Str("remote", remoteAddr).Msg("Device sent no usable first frame")
		_ = ws.Close()
		return
	}

	deviceID := first.Src
	if deviceID == "" {
		deviceID = fallbackDeviceID(remoteAddr)
	}

	transport := newWSTransport(ws)
	l.broker.Register(deviceID, transport)
	defer l.broker.Unregister(deviceID, transport)

	done := make(chan struct{})
	defer close(done)
	go pingLoop(ws, done)

	l.broker.Dispatch(deviceID, transport, &first)

	for {
		var frame Frame
		err := ws.ReadJSON(&frame)
		if err == nil {
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			l.broker.Dispatch(deviceID, transport, &frame)
			continue
		}

		if isDecodeError(err) {
			// The frame was garbage but the connection is fine.
			logger.Warn().Err(errFactory.Wrap(ErrProtocolViolation, err)).Str("device_id", deviceID).Msg("Dropping malformed frame")
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}

		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Warn().Err(err).Str("device_id", deviceID).Msg("Device connection lost")
		}
		return
	}
}

// isDecodeError reports whether a ReadJSON failure was a payload
// problem rather than a connection problem.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func fallbackDeviceID(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	return "shelly_" + strings.NewReplacer(".", "_", ":", "_").Replace(host)
}

func pingLoop(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// wsTransport serializes writes: RPC requests and keepalive pings come
// from different goroutines and gorilla allows only one writer.
type wsTransport struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSTransport(ws *websocket.Conn) *wsTransport {
	return &wsTransport{ws: ws}
}

func (t *wsTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))

	return t.ws.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}
