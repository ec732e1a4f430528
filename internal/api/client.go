package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duyngulam/fubabus-mobile/internal/trip"
)

// requestTimeout matches the reference client's fixed REST timeout.
const requestTimeout = 10 * time.Second

// Client talks to the bus-operations backend over REST. It is safe for
// concurrent use; the bearer token may be swapped at any time.
type Client struct {
	base  string
	httpc *http.Client
	log   zerolog.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(base string, log zerolog.Logger) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		httpc: &http.Client{Timeout: requestTimeout},
		log:   log.With().Str("component", "api-client").Logger(),
	}
}

// SetToken installs the bearer token used on subsequent requests. An empty
// token clears authentication.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates with email/phone and password. The login endpoint
// returns the token payload directly, not wrapped in the generic envelope.
func (c *Client) Login(ctx context.Context, emailOrPhone, password string) (LoginResponse, error) {
	var res LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", nil,
		LoginRequest{EmailOrPhone: emailOrPhone, Password: password}, &res)
	if err != nil {
		return LoginResponse{}, err
	}
	if res.Token == "" {
		return LoginResponse{}, fmt.Errorf("login: empty token in response")
	}
	return res, nil
}

func (c *Client) Profile(ctx context.Context) (User, error) {
	var env Response[User]
	if err := c.do(ctx, http.MethodGet, "/users/profile", nil, nil, &env); err != nil {
		return User{}, err
	}
	if !env.Success {
		return User{}, fmt.Errorf("profile: %s", env.Message)
	}
	return env.Data, nil
}

// TripQuery filters the driver trip listing.
type TripQuery struct {
	Status trip.Status
	Page   int
	Size   int
}

func (c *Client) DriverTrips(ctx context.Context, driverID int64, q TripQuery) (Page[trip.Trip], error) {
	if q.Size <= 0 {
		q.Size = 10
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("size", strconv.Itoa(q.Size))
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}

	var env Response[Page[trip.Trip]]
	path := fmt.Sprintf("/trips/driver/%d", driverID)
	if err := c.do(ctx, http.MethodGet, path, params, nil, &env); err != nil {
		return Page[trip.Trip]{}, err
	}
	if !env.Success {
		return Page[trip.Trip]{}, fmt.Errorf("driver trips: %s", env.Message)
	}
	page := env.Data
	for i := range page.Content {
		page.Content[i].Status = trip.ParseStatus(string(page.Content[i].Status))
	}
	return page, nil
}

// TripByID fetches one trip's detail. Implements trip.Fetcher.
func (c *Client) TripByID(ctx context.Context, tripID int64) (trip.Trip, error) {
	var env Response[trip.Trip]
	path := fmt.Sprintf("/trips/%d", tripID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &env); err != nil {
		return trip.Trip{}, err
	}
	if !env.Success {
		return trip.Trip{}, fmt.Errorf("trip %d: %s", tripID, env.Message)
	}
	t := env.Data
	t.Status = trip.ParseStatus(string(t.Status))
	return t, nil
}

func (c *Client) UpdateTripStatus(ctx context.Context, tripID int64, status trip.Status) error {
	var env Response[json.RawMessage]
	path := fmt.Sprintf("/trips/%d/status", tripID)
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPut, path, nil, body, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("update trip %d status: %s", tripID, env.Message)
	}
	return nil
}

func (c *Client) CompleteTrip(ctx context.Context, tripID int64, req CompleteTripRequest) error {
	var env Response[json.RawMessage]
	path := fmt.Sprintf("/trips/%d/complete", tripID)
	if err := c.do(ctx, http.MethodPost, path, nil, req, &env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("complete trip %d: %s", tripID, env.Message)
	}
	return nil
}

func (c *Client) CheckInTicket(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	var env Response[CheckInResult]
	if err := c.do(ctx, http.MethodPost, "/tickets/check-in", nil, req, &env); err != nil {
		return CheckInResult{}, err
	}
	if !env.Success {
		return CheckInResult{}, fmt.Errorf("check-in %s: %s", req.TicketCode, env.Message)
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
