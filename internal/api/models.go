package api

// Response is the backend's generic envelope.
type Response[T any] struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      T      `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Page mirrors the backend's Spring-style page wrapper.
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Size          int `json:"size"`
	Number        int `json:"number"`
}

type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
}

type LoginRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Password     string `json:"password"`
}

type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	User         User   `json:"user"`
}

type CompleteTripRequest struct {
	DriverID int64  `json:"driverId"`
	Note     string `json:"note,omitempty"`
}

type CheckInRequest struct {
	TicketCode    string `json:"ticketCode"`
	TripID        int64  `json:"tripId,omitempty"`
	CheckInMethod string `json:"checkInMethod"`
}

type CheckInResult struct {
	TicketID    int64  `json:"ticketId"`
	TicketCode  string `json:"ticketCode"`
	CheckInTime string `json:"checkInTime"`
	Status      string `json:"status"`
}
