package trip

import "strings"

// Status is the canonical trip status representation. The backend has been
// seen emitting mixed casing ("Running", "RUNNING"); ParseStatus normalizes
// everything to the upper-case form at ingestion so comparisons happen in
// exactly one place.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusRunning   Status = "RUNNING"
	StatusDelayed   Status = "DELAYED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Running reports whether the status gates GPS tracking on.
func (s Status) Running() bool {
	return s == StatusRunning
}

type Trip struct {
	TripID        int64  `json:"tripId"`
	RouteName     string `json:"routeName"`
	From          string `json:"from"`
	To            string `json:"to"`
	BusPlate      string `json:"busPlate"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	Status        Status `json:"status"`
}
