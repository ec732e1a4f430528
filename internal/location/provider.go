package location

import "context"

// Position is a single device fix. Speed is nil when the fix carries no
// speed; consumers default it to 0.
type Position struct {
	Latitude  float64
	Longitude float64
	Speed     *float64
}

// Provider wraps the device geolocation API: permission request and one-shot
// high-accuracy position fetch.
type Provider interface {
	// RequestPermission asks for location access. Denial is a normal
	// outcome, never an error.
	RequestPermission(ctx context.Context) bool
	// Current returns a single position fix.
	Current(ctx context.Context) (Position, error)
}
