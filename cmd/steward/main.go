// Command steward runs the autonomous city steward. It observes a running
// citysim over HTTP, picks at most one intervention per cycle and applies
// it through the admin action endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/gridcity/internal/logging"
	"github.com/talgya/gridcity/internal/steward"
)

func main() {
	logging.Setup(logging.Config{
		Level:  os.Getenv("GRIDCITY_LOG_LEVEL"),
		Format: os.Getenv("GRIDCITY_LOG_FORMAT"),
	})

	// Configuration from environment.
	apiURL := envOrDefault("GRIDCITY_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("GRIDCITY_ADMIN_KEY")
	memoryPath := envOrDefault("STEWARD_MEMORY", "data/steward_memory.json")
	intervalSec := envIntOrDefault("STEWARD_INTERVAL", 60)

	if adminKey == "" {
		slog.Error("GRIDCITY_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("gridcity steward starting",
		"api_url", apiURL,
		"interval", interval,
		"memory", memoryPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wait for the city API to be ready before the first cycle.
	slog.Info("waiting for city API...")
	if err := steward.WaitForAPI(ctx, apiURL, 5*time.Minute); err != nil {
		slog.Error("city API unavailable", "error", err)
		os.Exit(1)
	}

	s := steward.New(apiURL, adminKey, memoryPath)
	if len(s.Memory.Records) > 0 {
		slog.Info("resuming with memory", "cycles", len(s.Memory.Records))
		slog.Debug("recent cycles\n" + s.Memory.Summary())
	}

	s.Run(ctx, interval)
	fmt.Println("Steward stopped.")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}
