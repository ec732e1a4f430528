package gps

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/duyngulam/fubabus-mobile/internal/location"
	"github.com/duyngulam/fubabus-mobile/internal/transport"
	"github.com/duyngulam/fubabus-mobile/internal/trip"
)

type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	failConnect bool
	failSend    bool
	connects    int
	disconnects int
	samples     []transport.GPSSample
	sent        chan transport.GPSSample
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan transport.GPSSample, 64)}
}

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failConnect {
		return errors.New("dial refused")
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeTransport) SendGPS(s transport.GPSSample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.failSend {
		return false
	}
	f.samples = append(f.samples, s)
	select {
	case f.sent <- s:
	default:
	}
	return true
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) dropLink() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) counts() (connects, disconnects, samples int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, len(f.samples)
}

type fakeProvider struct {
	mu       sync.Mutex
	granted  bool
	requests int
	fixErr   error
	lat, lng float64
	speed    *float64
}

func (p *fakeProvider) RequestPermission(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	return p.granted
}

func (p *fakeProvider) Current(_ context.Context) (location.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fixErr != nil {
		return location.Position{}, p.fixErr
	}
	return location.Position{Latitude: p.lat, Longitude: p.lng, Speed: p.speed}, nil
}

func (p *fakeProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

func waitSamples(t *testing.T, tr *fakeTransport, n int, timeout time.Duration) []transport.GPSSample {
	t.Helper()
	var got []transport.GPSSample
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case s := <-tr.sent:
			got = append(got, s)
		case <-deadline:
			t.Fatalf("received %d samples, want %d", len(got), n)
		}
	}
	return got
}

func runningState(tripID int64) trip.State {
	return trip.State{TripID: tripID, HasTrip: true, Running: true}
}

func TestReactiveStartSendsImmediateSample(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true, lat: 10.776, lng: 106.700}
	r := NewReporter(tr, prov, zerolog.Nop(), time.Hour)
	defer r.Close()

	r.OnTripState(runningState(42))

	if !r.IsTracking() {
		t.Fatalf("expected tracking")
	}
	if !r.HasLocationPermission() {
		t.Fatalf("expected permission recorded")
	}
	if prov.requestCount() != 1 {
		t.Fatalf("expected one permission request, got %d", prov.requestCount())
	}
	connects, _, samples := tr.counts()
	if connects != 1 {
		t.Fatalf("expected one connect, got %d", connects)
	}
	if samples != 1 {
		t.Fatalf("expected one immediate sample, got %d", samples)
	}
	s := <-tr.sent
	if s.TripID != 42 {
		t.Fatalf("unexpected trip id: %d", s.TripID)
	}
	if s.Speed != 0 {
		t.Fatalf("missing speed must default to 0, got %v", s.Speed)
	}
	if _, err := time.Parse(time.RFC3339, s.Timestamp); err != nil {
		t.Fatalf("timestamp not RFC3339: %q", s.Timestamp)
	}
	if r.LastGPSUpdate().IsZero() {
		t.Fatalf("expected last update recorded")
	}
}

func TestPeriodicSampling(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	r := NewReporter(tr, prov, zerolog.Nop(), 20*time.Millisecond)
	defer r.Close()

	start := time.Now()
	r.OnTripState(runningState(42))

	// 1 immediate + 3 ticks.
	got := waitSamples(t, tr, 4, 2*time.Second)
	for _, s := range got {
		if s.TripID != 42 {
			t.Fatalf("unexpected trip id: %d", s.TripID)
		}
	}
	// Four samples from a single timer need at least three full intervals;
	// a duplicated timer would deliver them twice as fast.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("samples arrived too fast for one timer: %v", elapsed)
	}
}

func TestStartTrackingTwiceIsNoop(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	r := NewReporter(tr, prov, zerolog.Nop(), 20*time.Millisecond)
	defer r.Close()

	r.OnTripState(runningState(42))
	r.StartTracking(context.Background())
	r.StartTracking(context.Background())

	connects, _, samples := tr.counts()
	if connects != 1 {
		t.Fatalf("expected one connect, got %d", connects)
	}
	if samples != 1 {
		t.Fatalf("redundant starts must not resample, got %d", samples)
	}
}

func TestStopTrackingIdempotent(t *testing.T) {
	tr := newFakeTransport()
	r := NewReporter(tr, &fakeProvider{granted: true}, zerolog.Nop(), time.Hour)

	r.StopTracking()
	r.StopTracking()

	_, disconnects, _ := tr.counts()
	if disconnects != 0 {
		t.Fatalf("idle stop must not touch the connection, got %d disconnects", disconnects)
	}
}

func TestCloseTearsDownSession(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	r := NewReporter(tr, prov, zerolog.Nop(), 10*time.Millisecond)

	r.OnTripState(runningState(42))
	waitSamples(t, tr, 2, time.Second)

	r.Close()

	if r.IsTracking() {
		t.Fatalf("expected tracking stopped")
	}
	_, disconnects, samples := tr.counts()
	if disconnects != 1 {
		t.Fatalf("expected exactly one disconnect, got %d", disconnects)
	}

	// The timer handle must be inert after teardown.
	time.Sleep(50 * time.Millisecond)
	_, _, after := tr.counts()
	if after != samples {
		t.Fatalf("samples sent after teardown: %d -> %d", samples, after)
	}

	// A second close stays a no-op.
	r.Close()
	_, disconnects, _ = tr.counts()
	if disconnects != 1 {
		t.Fatalf("second close must not disconnect again, got %d", disconnects)
	}
}

func TestPermissionDeniedAbortsStart(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: false}
	r := NewReporter(tr, prov, zerolog.Nop(), time.Hour)

	r.OnTripState(runningState(42))

	if r.IsTracking() {
		t.Fatalf("tracking must not start without permission")
	}
	if r.HasLocationPermission() {
		t.Fatalf("expected permission denied recorded")
	}
	connects, _, _ := tr.counts()
	if connects != 0 {
		t.Fatalf("must not connect without permission, got %d", connects)
	}
}

func TestConnectFailureAbortsStart(t *testing.T) {
	tr := newFakeTransport()
	tr.failConnect = true
	r := NewReporter(tr, &fakeProvider{granted: true}, zerolog.Nop(), time.Hour)

	r.OnTripState(runningState(42))

	if r.IsTracking() {
		t.Fatalf("tracking must not start when connect fails")
	}
	if r.ConnectionStatus() {
		t.Fatalf("expected connection status false")
	}
}

func TestTickReconnectBackstop(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	r := NewReporter(tr, prov, zerolog.Nop(), 10*time.Millisecond)
	defer r.Close()

	r.OnTripState(runningState(42))
	waitSamples(t, tr, 1, time.Second)

	// Drop the link without a deliberate disconnect; the next tick must
	// reconnect instead of sampling.
	tr.dropLink()

	deadline := time.Now().Add(time.Second)
	for {
		connects, _, _ := tr.counts()
		if connects >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tick did not attempt reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Sampling resumes on a subsequent tick.
	waitSamples(t, tr, 1, time.Second)
	if !r.ConnectionStatus() {
		t.Fatalf("expected connection status true after reconnect")
	}
}

func TestStopScenario(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	r := NewReporter(tr, prov, zerolog.Nop(), 10*time.Millisecond)

	r.OnTripState(runningState(42))
	waitSamples(t, tr, 1, time.Second)

	r.OnTripState(trip.State{})

	if r.IsTracking() {
		t.Fatalf("expected tracking stopped")
	}
	_, disconnects, _ := tr.counts()
	if disconnects != 1 {
		t.Fatalf("expected exactly one disconnect, got %d", disconnects)
	}
}

func TestSpeedCarriedWhenPresent(t *testing.T) {
	tr := newFakeTransport()
	speed := 13.4
	prov := &fakeProvider{granted: true, speed: &speed}
	r := NewReporter(tr, prov, zerolog.Nop(), time.Hour)
	defer r.Close()

	r.OnTripState(runningState(7))

	s := <-tr.sent
	if s.Speed != 13.4 {
		t.Fatalf("expected speed carried through, got %v", s.Speed)
	}
}

func TestFailedFixKeepsLoopAlive(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	prov.fixErr = errors.New("gps unavailable")
	r := NewReporter(tr, prov, zerolog.Nop(), 10*time.Millisecond)
	defer r.Close()

	r.OnTripState(runningState(42))
	if !r.IsTracking() {
		t.Fatalf("a failed fix must not prevent the session")
	}

	// Recover the fix; the loop must still be sampling.
	prov.mu.Lock()
	prov.fixErr = nil
	prov.mu.Unlock()

	waitSamples(t, tr, 1, time.Second)
}

func TestPermissionRerequestedAfterDenial(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: false}
	r := NewReporter(tr, prov, zerolog.Nop(), time.Hour)
	defer r.Close()

	r.OnTripState(runningState(42))
	if prov.requestCount() != 1 {
		t.Fatalf("expected one request, got %d", prov.requestCount())
	}

	// The user grants permission; the next state change retries.
	prov.mu.Lock()
	prov.granted = true
	prov.mu.Unlock()

	r.OnTripState(trip.State{})
	r.OnTripState(runningState(42))

	if !r.IsTracking() {
		t.Fatalf("expected tracking after grant")
	}
	if prov.requestCount() != 2 {
		t.Fatalf("expected re-request after denial, got %d", prov.requestCount())
	}
}

func TestSnapshot(t *testing.T) {
	tr := newFakeTransport()
	prov := &fakeProvider{granted: true}
	r := NewReporter(tr, prov, zerolog.Nop(), time.Hour)
	defer r.Close()

	snap := r.Snapshot()
	if snap.Tracking || snap.Connected || snap.TripID != 0 {
		t.Fatalf("unexpected idle snapshot: %+v", snap)
	}

	r.OnTripState(runningState(42))
	snap = r.Snapshot()
	if !snap.Tracking || !snap.Running || snap.TripID != 42 || !snap.Permission || !snap.Connected {
		t.Fatalf("unexpected tracking snapshot: %+v", snap)
	}
	if snap.LastUpdate.IsZero() {
		t.Fatalf("expected last update in snapshot")
	}
}
