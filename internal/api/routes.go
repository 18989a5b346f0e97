package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
	AccessLog    bool
}

// NewApp собирает fiber-приложение с middleware и маршрутами
func NewApp(h *Handler, opts Options) *fiber.App {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 64 << 20
	}
	app := fiber.New(fiber.Config{
		AppName:               "medchat",
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		BodyLimit:             opts.BodyLimit,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} ${latency} ${method} ${path}\n",
		}))
	}
	RegisterRoutes(app, h)
	return app
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/", h.Index)
	app.Get("/health", h.Health)
	app.Get("/get", h.Chat)
	app.Post("/get", h.Chat)
	app.Post("/ask", h.Ask)
	app.Post("/ingest", h.IngestPDF)
}
