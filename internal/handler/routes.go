package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	ws "github.com/makeasinger/samplepack/internal/websocket"
)

// RegisterRoutes mounts the job API and the progress stream on app
func RegisterRoutes(app *fiber.App, samples *SampleHandler, hub *ws.Hub) {
	// Sample routes
	app.Post("/sample", samples.Create)
	app.Get("/sample/:jobId", samples.Status)
	app.Get("/sample/:jobId/download", samples.Download)
	app.Post("/sample/:jobId/cancel", samples.Cancel)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sample/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))
}
