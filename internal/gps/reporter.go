package gps

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duyngulam/fubabus-mobile/internal/location"
	"github.com/duyngulam/fubabus-mobile/internal/transport"
	"github.com/duyngulam/fubabus-mobile/internal/trip"
)

// DefaultInterval is the sampling period between location transmissions.
const DefaultInterval = 5 * time.Second

// Transport is the slice of the persistent connection the reporter drives.
// *transport.Conn satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendGPS(sample transport.GPSSample) bool
	Connected() bool
}

// Snapshot is the externally visible tracking state.
type Snapshot struct {
	TripID     int64     `json:"trip_id"`
	Running    bool      `json:"running"`
	Tracking   bool      `json:"tracking"`
	Permission bool      `json:"permission"`
	Connected  bool      `json:"connected"`
	LastUpdate time.Time `json:"last_update"`
}

// Reporter translates the (tripId, isRunning) pair into a running or stopped
// periodic sampling loop. Tracking is on exactly when a trip is set and its
// status is running; transient failures (missed fix, dropped connection,
// failed send) never terminate the session, only StopTracking does.
type Reporter struct {
	tr       Transport
	loc      location.Provider
	log      zerolog.Logger
	interval time.Duration

	mu sync.Mutex

	// policy inputs, updated by OnTripState
	tripID  int64
	running bool

	// session state
	tracking   bool
	starting   bool
	permKnown  bool
	permission bool
	connected  bool
	lastUpdate time.Time

	stop chan struct{}
	done chan struct{}
}

func NewReporter(tr Transport, loc location.Provider, log zerolog.Logger, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		tr:       tr,
		loc:      loc,
		log:      log.With().Str("component", "gps-reporter").Logger(),
		interval: interval,
	}
}

// OnTripState is the reactive rule: on every change to the active trip,
// recompute whether tracking should run and reconcile. Idempotent when the
// desired state already matches.
func (r *Reporter) OnTripState(st trip.State) {
	r.mu.Lock()
	if st.HasTrip {
		r.tripID = st.TripID
	} else {
		r.tripID = 0
	}
	r.running = st.Running
	r.mu.Unlock()
	r.reconcile()
}

func (r *Reporter) reconcile() {
	r.mu.Lock()
	shouldTrack := r.tripID != 0 && r.running
	tracking := r.tracking
	r.mu.Unlock()

	if shouldTrack && !tracking {
		r.StartTracking(context.Background())
	} else if !shouldTrack && tracking {
		r.StopTracking()
	}
}

// RequestLocationPermission asks the provider for access and records the
// outcome. Denial is state, not an error.
func (r *Reporter) RequestLocationPermission(ctx context.Context) bool {
	granted := r.loc.RequestPermission(ctx)
	r.mu.Lock()
	r.permKnown = true
	r.permission = granted
	r.mu.Unlock()
	if granted {
		r.log.Info().Msg("location permission granted")
	} else {
		r.log.Warn().Msg("location permission denied")
	}
	return granted
}

// StartTracking begins the sampling session: permission, connection, one
// immediate sample, then the repeating timer. A no-op while already tracking
// or when the policy inputs do not call for tracking.
func (r *Reporter) StartTracking(ctx context.Context) {
	r.mu.Lock()
	if r.tracking || r.starting || r.tripID == 0 || !r.running {
		r.mu.Unlock()
		return
	}
	r.starting = true
	tripID := r.tripID
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.starting = false
		r.mu.Unlock()
	}()

	r.log.Info().Int64("trip_id", tripID).Msg("starting gps tracking")

	if !r.ensurePermission(ctx) {
		r.log.Warn().Int64("trip_id", tripID).Msg("cannot start tracking: no location permission")
		return
	}

	if err := r.tr.Connect(ctx); err != nil {
		r.log.Error().Err(err).Int64("trip_id", tripID).Msg("cannot start tracking: connect failed")
		r.setConnected(false)
		return
	}
	r.setConnected(true)

	r.sendSample(ctx, tripID)

	r.mu.Lock()
	r.tracking = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.loop(stop, done)
	r.log.Info().Int64("trip_id", tripID).Dur("interval", r.interval).Msg("gps tracking started")

	// The trip may have stopped while we were connecting; reconcile once
	// more so a stale session does not linger.
	r.mu.Lock()
	stale := r.tripID == 0 || !r.running
	r.mu.Unlock()
	if stale {
		r.StopTracking()
	}
}

// StopTracking tears the session down: the timer is made inert first, then
// the transport is disconnected, so a tick cannot fire into a closing
// socket. A no-op when not tracking.
func (r *Reporter) StopTracking() {
	r.mu.Lock()
	if !r.tracking {
		r.mu.Unlock()
		return
	}
	r.tracking = false
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	r.log.Info().Msg("stopping gps tracking")
	close(stop)
	<-done
	r.tr.Disconnect()
	r.setConnected(false)
	r.log.Info().Msg("gps tracking stopped")
}

// Close is the unconditional teardown for process shutdown: no timer and no
// socket survive it, whatever the current state.
func (r *Reporter) Close() {
	r.StopTracking()
}

func (r *Reporter) IsTracking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracking
}

func (r *Reporter) HasLocationPermission() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permKnown && r.permission
}

// LastGPSUpdate returns the time of the last successful transmission; zero
// when none has happened yet.
func (r *Reporter) LastGPSUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

func (r *Reporter) ConnectionStatus() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		TripID:     r.tripID,
		Running:    r.running,
		Tracking:   r.tracking,
		Permission: r.permKnown && r.permission,
		Connected:  r.connected,
		LastUpdate: r.lastUpdate,
	}
}

func (r *Reporter) ensurePermission(ctx context.Context) bool {
	r.mu.Lock()
	known, granted := r.permKnown, r.permission
	r.mu.Unlock()
	if known && granted {
		return true
	}
	return r.RequestLocationPermission(ctx)
}

func (r *Reporter) loop(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.tick(context.Background())
		}
	}
}

// tick re-checks connection health before sampling. A dead connection gets
// one reconnect attempt and no sample this tick; sampling resumes on the
// next tick once reconnected.
func (r *Reporter) tick(ctx context.Context) {
	r.mu.Lock()
	tripID := r.tripID
	r.mu.Unlock()

	if r.tr.Connected() {
		r.setConnected(true)
		r.sendSample(ctx, tripID)
		return
	}

	r.setConnected(false)
	r.log.Warn().Msg("transport disconnected, attempting reconnect")
	if err := r.tr.Connect(ctx); err != nil {
		r.log.Error().Err(err).Msg("reconnect failed")
		return
	}
	r.setConnected(true)
}

func (r *Reporter) sendSample(ctx context.Context, tripID int64) {
	pos, err := r.loc.Current(ctx)
	if err != nil {
		// A failed fix never stops the loop.
		r.log.Warn().Err(err).Msg("position fix failed")
		return
	}

	speed := 0.0
	if pos.Speed != nil {
		speed = *pos.Speed
	}
	sample := transport.GPSSample{
		TripID:    tripID,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Speed:     speed,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if !r.tr.SendGPS(sample) {
		r.log.Warn().Int64("trip_id", tripID).Msg("gps send failed")
		return
	}
	r.mu.Lock()
	r.lastUpdate = time.Now()
	r.mu.Unlock()
}

func (r *Reporter) setConnected(v bool) {
	r.mu.Lock()
	r.connected = v
	r.mu.Unlock()
}
