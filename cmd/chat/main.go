// Command chat is a terminal client for a running medchat server.
package main

import (
	"flag"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"

	"github.com/katakuxiko/medchat/internal/tui"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", getenv("MEDCHAT_SERVER", "http://localhost:8080"), "medchat server URL")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-question timeout")
	flag.Parse()

	m := tui.New(tui.NewClient(*server, *timeout), *server, *timeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("chat: %v", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
