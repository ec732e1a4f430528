package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Destination for location updates on the backend message broker.
const gpsDestination = "/app/gps/update"

// Fixed protocol timings. The backend expects the reference client's exact
// values, so these are not configurable in production builds.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReconnectDelay    = 5 * time.Second
)

var (
	errConnecting   = errors.New("transport: connect already in progress")
	errDisconnected = errors.New("transport: disconnected during connect")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "disconnected"
	}
}

// GPSSample is one location reading bound to a trip. Timestamp is taken at
// send time, not at position-fix time.
type GPSSample struct {
	TripID    int64   `json:"tripId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Timestamp string  `json:"timestamp"`
}

// envelope wraps an outbound payload with its command and destination. The
// body is the JSON-encoded sample as a string, not a nested object.
type envelope struct {
	Command     string `json:"command"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

type heartbeat struct {
	Type string `json:"type"`
}

// Conn maintains the single persistent connection used to publish location
// updates. It is owned exclusively by the GPS reporter; no other component
// may touch it.
type Conn struct {
	url string
	log zerolog.Logger

	// Overridable before first Connect; tests compress them.
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration

	mu         sync.Mutex
	ws         *websocket.Conn
	state      State
	deliberate bool
	dialGen    uint64
	hbStop     chan struct{}
	reconnect  *time.Timer

	// Gorilla allows one concurrent writer; heartbeat, samples and close
	// frames all serialize here.
	writeMu sync.Mutex
}

func NewConn(url string, log zerolog.Logger) *Conn {
	return &Conn{
		url:               url,
		log:               log.With().Str("component", "transport").Logger(),
		ConnectTimeout:    DefaultConnectTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReconnectDelay:    DefaultReconnectDelay,
	}
}

// Connect opens the websocket and arms the heartbeat. Calling it while
// already connected is a no-op, not an error. A dial error and the connect
// timeout share the same failure path: state resets to Disconnected and the
// error is returned. A Disconnect that arrives while the dial is in flight
// wins: the freshly dialed socket is closed instead of installed.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Connected:
		c.mu.Unlock()
		return nil
	case Connecting, Closing:
		c.mu.Unlock()
		return errConnecting
	}
	c.state = Connecting
	c.deliberate = false
	c.dialGen++
	gen := c.dialGen
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
	defer cancel()

	c.log.Info().Str("url", c.url).Msg("connecting")
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		if c.dialGen == gen && c.state == Connecting {
			c.state = Disconnected
		}
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("connect failed")
		return fmt.Errorf("transport connect: %w", err)
	}

	c.mu.Lock()
	if c.dialGen != gen || c.state != Connecting {
		// Disconnect (or a newer connect) landed while the dial was in
		// flight; the fresh socket must not outlive it.
		c.mu.Unlock()
		_ = ws.Close()
		c.log.Info().Msg("connect aborted: superseded during dial")
		return errDisconnected
	}
	c.ws = ws
	c.state = Connected
	c.hbStop = make(chan struct{})
	go c.heartbeatLoop(ws, c.hbStop)
	go c.readLoop(ws)
	c.mu.Unlock()

	c.log.Info().Msg("connected")
	return nil
}

// Disconnect is the deliberate close: it cancels the heartbeat and any
// scheduled reconnect, then closes the channel with the normal-closure code
// so the close path does not auto-reconnect. Safe to call when already
// disconnected.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.deliberate = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	ws := c.ws
	c.ws = nil
	if ws == nil {
		c.state = Disconnected
		c.mu.Unlock()
		return
	}
	c.state = Closing
	c.mu.Unlock()

	c.log.Info().Msg("disconnecting")
	deadline := time.Now().Add(time.Second)
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	_ = ws.Close()

	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
}

// SendGPS publishes one sample. It never returns an error: false means the
// connection was down or the write failed, and the caller's loop carries on.
func (c *Conn) SendGPS(sample GPSSample) bool {
	c.mu.Lock()
	ws := c.ws
	connected := c.state == Connected
	c.mu.Unlock()
	if !connected || ws == nil {
		c.log.Warn().Int64("trip_id", sample.TripID).Msg("cannot send gps: not connected")
		return false
	}

	body, err := json.Marshal(sample)
	if err != nil {
		c.log.Error().Err(err).Msg("encode gps sample")
		return false
	}
	env := envelope{Command: "SEND", Destination: gpsDestination, Body: string(body)}

	c.writeMu.Lock()
	err = ws.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.log.Error().Err(err).Msg("send gps failed")
		return false
	}

	c.log.Debug().
		Int64("trip_id", sample.TripID).
		Float64("lat", sample.Latitude).
		Float64("lng", sample.Longitude).
		Float64("speed", sample.Speed).
		Msg("gps sent")
	return true
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readLoop drains inbound frames so close frames and pings are processed.
// The server does not address this client individually; inbound payloads are
// logged and dropped.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(ws, err)
			return
		}
		c.log.Debug().Int("bytes", len(msg)).Msg("message received")
	}
}

// handleClose runs when the peer or the network terminates the connection.
// A non-deliberate close schedules exactly one reconnect attempt; if that
// attempt fails, the sampler's per-tick retry is the long-run backstop.
func (c *Conn) handleClose(ws *websocket.Conn, err error) {
	c.mu.Lock()
	if c.ws != ws {
		// A deliberate Disconnect or a replacement already owns teardown.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = Disconnected
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	deliberate := c.deliberate
	delay := c.ReconnectDelay
	if !deliberate {
		c.log.Warn().Err(err).Msg("connection lost, scheduling reconnect")
		c.reconnect = time.AfterFunc(delay, func() {
			if cerr := c.Connect(context.Background()); cerr != nil {
				c.log.Error().Err(cerr).Msg("reconnect failed")
			}
		})
	}
	c.mu.Unlock()
	_ = ws.Close()
}

func (c *Conn) heartbeatLoop(ws *websocket.Conn, stop chan struct{}) {
	t := time.NewTicker(c.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := ws.WriteJSON(heartbeat{Type: "ping"})
			c.writeMu.Unlock()
			if err != nil {
				// A single missed heartbeat is not fatal; the read loop
				// notices a dead peer and drives the close path.
				c.log.Warn().Err(err).Msg("heartbeat send failed")
			}
		}
	}
}
