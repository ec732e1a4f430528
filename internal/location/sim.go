package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/duyngulam/fubabus-mobile/internal/shared/geo"
)

// Waypoint is a lat/lng pair on a simulated route.
type Waypoint struct {
	Latitude  float64
	Longitude float64
}

// DefaultRoute follows the Saigon - Vung Tau coastal road, one fix per stop.
func DefaultRoute() []Waypoint {
	return []Waypoint{
		{10.7769, 106.7009},
		{10.7431, 106.7465},
		{10.6840, 106.8412},
		{10.5871, 107.0151},
		{10.4620, 107.0843},
		{10.3460, 107.0843},
	}
}

// SimProvider walks a waypoint list, returning the next point on every fix
// and estimating speed from the distance to the previous one. It stands in
// for the device GPS when the agent runs outside a vehicle.
type SimProvider struct {
	mu      sync.Mutex
	route   []Waypoint
	granted bool
	idx     int

	hasLast bool
	lastAt  time.Time
	last    Waypoint
}

func NewSimProvider(route []Waypoint) *SimProvider {
	return &SimProvider{route: route, granted: true}
}

// Deny makes subsequent permission requests fail, mimicking a user that
// declined the OS prompt.
func (p *SimProvider) Deny() {
	p.mu.Lock()
	p.granted = false
	p.mu.Unlock()
}

func (p *SimProvider) RequestPermission(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *SimProvider) Current(_ context.Context) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.route) == 0 {
		return Position{}, errors.New("sim provider: no route loaded")
	}

	wp := p.route[p.idx%len(p.route)]
	p.idx++

	pos := Position{Latitude: wp.Latitude, Longitude: wp.Longitude}
	now := time.Now()
	if p.hasLast {
		if dt := now.Sub(p.lastAt).Seconds(); dt > 0 {
			meters := geo.HaversineKm(p.last.Latitude, p.last.Longitude, wp.Latitude, wp.Longitude) * 1000
			speed := meters / dt
			pos.Speed = &speed
		}
	}
	p.hasLast = true
	p.lastAt = now
	p.last = wp
	return pos, nil
}
