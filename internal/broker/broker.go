package broker

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/edgewatt/powerexporter/internal/errors"
	"github.com/edgewatt/powerexporter/internal/logger"
	"github.com/google/uuid"
)

// source identifies this process in outbound frames; Shelly Gen2
// firmware expects a src on every RPC request.
const source = "powerexporter"

// Broker owns the live device connections and multiplexes concurrent
// request/response exchanges over them. The connection table has its
// own lock and every connection keeps its own pending table, so one
// slow device never blocks another.
type Broker struct {
	mu    sync.RWMutex
	conns map[string]*deviceConn
}

type deviceConn struct {
	deviceID  string
	transport Transport

	mu       sync.Mutex
	lastSeen time.Time
	pending  map[string]chan outcome
}

// outcome fills a pending request's response slot: either the
// correlated frame or the reason the exchange died early.
type outcome struct {
	frame *Frame
	err   error
}

func New() *Broker {
	return &Broker{conns: make(map[string]*deviceConn)}
}

func (c *deviceConn) addPending(id string) chan outcome {
	ch := make(chan outcome, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	return ch
}

// takePending removes the entry for id. Whoever removes the entry owns
// its channel: delivery and abandonment race through this one gate, so
// a response can never reach a caller that already gave up.
func (c *deviceConn) takePending(id string) (chan outcome, bool) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	return ch, ok
}

// failAll resolves every pending request with err. Each channel is
// buffered, so sends cannot block even when the requester is gone.
func (c *deviceConn) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan outcome)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- outcome{err: err}
	}
}

func (c *deviceConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *deviceConn) info() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	return DeviceInfo{DeviceID: c.deviceID, LastSeen: c.lastSeen}
}

// Register installs a connection for deviceID. A reconnecting device
// supersedes its previous connection: the old transport is closed and
// its in-flight requests fail with connection-lost immediately instead
// of waiting out their timeouts.
func (b *Broker) Register(deviceID string, transport Transport) {
	errFactory := errors.New()

	conn := &deviceConn{
		deviceID:  deviceID,
		transport: transport,
		lastSeen:  time.Now(),
		pending:   make(map[string]chan outcome),
	}

	b.mu.Lock()
	old := b.conns[deviceID]
	b.conns[deviceID] = conn
	b.mu.Unlock()

	if old == nil {
		logger.Info().Str("device_id", deviceID).Msg("Device connected")
		return
	}

	old.failAll(errFactory.WithData(ErrConnectionLost, deviceID))
	if err := old.transport.Close(); err != nil {
		logger.Debug().Err(err).Str("device_id", deviceID).Msg("Failed to close superseded connection")
	}
	logger.Info().Str("device_id", deviceID).Msg("Device reconnected, superseding previous connection")
}

// Unregister removes the connection if it is still the registered one.
// A superseded connection's read loop gets here late, after its
// replacement registered; the identity check keeps it from evicting
// the replacement.
func (b *Broker) Unregister(deviceID string, transport Transport) {
	errFactory := errors.New()

	b.mu.Lock()
	conn := b.conns[deviceID]
	if conn == nil || conn.transport != transport {
		b.mu.Unlock()
		return
	}
	delete(b.conns, deviceID)
	b.mu.Unlock()

	conn.failAll(errFactory.WithData(ErrConnectionLost, deviceID))
	logger.Info().Str("device_id", deviceID).Msg("Device disconnected")
}

// Dispatch hands one inbound frame to the broker. A response frame is
// delivered to its pending request by correlation id; everything else
// only refreshes liveness.
func (b *Broker) Dispatch(deviceID string, transport Transport, frame *Frame) {
	b.mu.RLock()
	conn := b.conns[deviceID]
	b.mu.RUnlock()
	if conn == nil || conn.transport != transport {
		return
	}

	conn.touch()

	if frame.Method != "" {
		logger.Debug().Str("device_id", deviceID).Str("method", frame.Method).Msg("Dropping unsolicited frame")
		return
	}

	// Correlation ids we issue are UUID strings; a response whose id is
	// anything else cannot be ours.
	id, ok := frame.ID.(string)
	if !ok {
		return
	}

	ch, ok := conn.takePending(id)
	if !ok {
		logger.Debug().Str("device_id", deviceID).Str("id", id).Msg("Dropping uncorrelated response")
		return
	}
	ch <- outcome{frame: frame}
}

// Request sends an RPC to the named device and waits for the correlated
// response. It fails fast when the device is not connected and leaves
// no pending entry behind on timeout or cancellation.
func (b *Broker) Request(ctx context.Context, deviceID, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	errFactory := errors.New()

	b.mu.RLock()
	conn := b.conns[deviceID]
	b.mu.RUnlock()
	if conn == nil {
		return nil, errFactory.WithData(ErrDeviceNotConnected, deviceID)
	}

	id := uuid.NewString()
	ch := conn.addPending(id)

	frame := &Frame{ID: id, Src: source, Dst: deviceID, Method: method, Params: params}
	if err := conn.transport.WriteJSON(frame); err != nil {
		conn.takePending(id)
		return nil, errFactory.Wrap(ErrConnectionLost, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return unpack(out, errFactory)
	case <-timer.C:
		if _, ok := conn.takePending(id); ok {
			return nil, errFactory.WithData(ErrRequestTimeout, map[string]any{
				"device_id": deviceID,
				"method":    method,
				"timeout":   timeout.String(),
			})
		}
		// Lost the race: a delivery already owns the slot.
		return unpack(<-ch, errFactory)
	case <-ctx.Done():
		if _, ok := conn.takePending(id); ok {
			return nil, errFactory.Wrap(ErrRequestCanceled, ctx.Err())
		}
		return unpack(<-ch, errFactory)
	}
}

func unpack(out outcome, errFactory errors.Factory) (json.RawMessage, error) {
	if out.err != nil {
		return nil, out.err
	}
	if out.frame.Error != nil {
		return nil, errFactory.Wrap(ErrRemoteError, out.frame.Error)
	}

	return out.frame.Result, nil
}

// Devices lists the live connections, ordered by device id.
func (b *Broker) Devices() []DeviceInfo {
	b.mu.RLock()
	infos := make([]DeviceInfo, 0, len(b.conns))
	for _, conn := range b.conns {
		infos = append(infos, conn.info())
	}
	b.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })

	return infos
}

// DeviceIDs lists the connected device identities, sorted.
func (b *Broker) DeviceIDs() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.conns))
	for id := range b.conns {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	sort.Strings(ids)

	return ids
}

// Close drops every connection, failing their in-flight requests.
func (b *Broker) Close() error {
	errFactory := errors.New()

	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[string]*deviceConn)
	b.mu.Unlock()

	for _, conn := range conns {
		conn.failAll(errFactory.WithData(ErrConnectionLost, conn.deviceID))
		if err := conn.transport.Close(); err != nil {
			logger.Debug().Err(err).Str("device_id", conn.deviceID).Msg("Failed to close device connection")
		}
	}

	return nil
}
