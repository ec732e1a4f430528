package status

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/duyngulam/fubabus-mobile/internal/gps"
)

// TripControl is the slice of trip lifecycle the control API exposes.
// *trip.Store satisfies it.
type TripControl interface {
	StartTrip(ctx context.Context, tripID int64) error
	StopTrip()
}

// NewServer builds the local control API: trip start/stop, a status
// snapshot, and a websocket feed of status events.
func NewServer(control TripControl, snapshot func() gps.Snapshot, hub *Hub) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(snapshot())
	})

	app.Post("/trips/:id/start", func(c *fiber.Ctx) error {
		tripID, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil || tripID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid trip id"})
		}
		if err := control.StartTrip(c.Context(), tripID); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"tripId": tripID, "started": true})
	})

	app.Post("/trips/stop", func(c *fiber.Ctx) error {
		control.StopTrip()
		return c.JSON(fiber.Map{"stopped": true})
	})

	app.Get("/status/ws", websocket.New(func(c *websocket.Conn) {
		client := hub.Register(TopicStatus)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		// Unregister first: closing Send unblocks the writer, so the handler
		// never waits on the next broadcast to exit.
		hub.Unregister(client)
		<-done
	}))

	return app
}
