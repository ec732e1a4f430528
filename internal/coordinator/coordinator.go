package coordinator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duyngulam/fubabus-mobile/internal/gps"
	"github.com/duyngulam/fubabus-mobile/internal/status"
	"github.com/duyngulam/fubabus-mobile/internal/trip"
)

// DefaultCheckInterval is the period of the background consistency check.
const DefaultCheckInterval = 30 * time.Second

// Reporter is the slice of the gps reporter the coordinator supervises.
type Reporter interface {
	OnTripState(st trip.State)
	Snapshot() gps.Snapshot
}

// Store is the trip state source the coordinator observes.
type Store interface {
	Subscribe(fn func(trip.State))
	Current() trip.State
}

// Coordinator wires trip state changes into the gps reporter, logs every
// transition, and periodically verifies that tracking matches the active
// trip. It holds no tracking state of its own.
type Coordinator struct {
	rep      Reporter
	store    Store
	hub      *status.Hub
	log      zerolog.Logger
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func New(rep Reporter, store Store, hub *status.Hub, log zerolog.Logger, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Coordinator{
		rep:      rep,
		store:    store,
		hub:      hub,
		log:      log.With().Str("component", "gps-coordinator").Logger(),
		interval: interval,
	}
}

// Bind subscribes to the trip store. The reporter reconciles first so the
// observation that follows sees the settled state.
func (c *Coordinator) Bind() {
	c.store.Subscribe(func(st trip.State) {
		c.rep.OnTripState(st)
		c.observe(st)
	})
}

// Start runs the periodic consistency check until Stop.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.observe(c.store.Current())
			}
		}
	}()
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Coordinator) observe(st trip.State) {
	snap := c.rep.Snapshot()
	should := st.HasTrip && st.Running

	ev := c.log.Info()
	if snap.Tracking != should {
		// The reporter is mid-transition or wedged; the next reconcile or
		// periodic check settles it.
		ev = c.log.Warn().Bool("should_track", should)
	}
	ev.Int64("trip_id", st.TripID).
		Bool("has_trip", st.HasTrip).
		Bool("running", st.Running).
		Bool("tracking", snap.Tracking).
		Bool("connected", snap.Connected).
		Msg("tracking state")

	if c.hub != nil {
		if b, err := json.Marshal(snap); err == nil {
			c.hub.Broadcast(status.TopicStatus, b)
		}
	}
}
