package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	harvestconfig "github.com/02loveslollipop/sensorthings-metadata/internal/config"
)

// Config holds environment-driven settings for the REST API.
type Config struct {
	Harvest harvestconfig.Config

	Port               int
	BearerToken        string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	hc, err := harvestconfig.Load()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Harvest:            hc,
		Port:               8020,
		CORSAllowedOrigins: []string{"*"},
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid PORT: %s", portStr)
		}
	} else if portStr := os.Getenv("API_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 {
			cfg.Port = port
		} else {
			return cfg, fmt.Errorf("invalid API_PORT: %s", portStr)
		}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}

	cfg.BearerToken = os.Getenv("API_BEARER_TOKEN")

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
