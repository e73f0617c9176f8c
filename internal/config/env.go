package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Supported task sinks.
const (
	SinkTickTick = "ticktick"
	SinkGoogle   = "google"
	SinkCalDAV   = "caldav"
)

const defaultCalDAVEndpoint = "https://caldav.icloud.com/"

// ErrMissingCanvasURL is returned when CANVAS_API_URL is not set.
var ErrMissingCanvasURL = errors.New("CANVAS_API_URL environment variable not set")

// Env holds endpoints and secrets read from the process environment.
type Env struct {
	LogLevel string

	// Canvas
	CanvasURL           string
	CanvasToken         string
	CanvasSessionCookie string
	CanvasStateFile     string

	// Sink selection
	Sink string

	// TickTick
	TickTickClientID     string
	TickTickClientSecret string

	// Google Tasks
	GoogleClientID     string
	GoogleClientSecret string

	// CalDAV
	CalDAVEndpoint    string
	CalDAVUsername    string
	CalDAVPassword    string
	CalDAVDefaultList string
}

// LoadEnv reads settings from environment variables. Call godotenv.Load first
// to pick up a .env file.
func LoadEnv() Env {
	return Env{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		CanvasURL:            strings.TrimSuffix(os.Getenv("CANVAS_API_URL"), "/"),
		CanvasToken:          os.Getenv("CANVAS_API_TOKEN"),
		CanvasSessionCookie:  os.Getenv("CANVAS_SESSION_COOKIE"),
		CanvasStateFile:      getEnv("CANVAS_STATE_FILE", "canvas_state.json"),
		Sink:                 strings.ToLower(getEnv("TASK_SINK", SinkTickTick)),
		TickTickClientID:     os.Getenv("TICKTICK_CLIENT_ID"),
		TickTickClientSecret: os.Getenv("TICKTICK_CLIENT_SECRET"),
		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
		CalDAVEndpoint:       getEnv("CALDAV_ENDPOINT", defaultCalDAVEndpoint),
		CalDAVUsername:       os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:       os.Getenv("CALDAV_PASSWORD"),
		CalDAVDefaultList:    getEnv("CALDAV_DEFAULT_LIST", "Reminders"),
	}
}

// Validate checks the settings every sync needs.
func (e Env) Validate() error {
	if e.CanvasURL == "" {
		return ErrMissingCanvasURL
	}
	switch e.Sink {
	case SinkTickTick, SinkGoogle:
	case SinkCalDAV:
		if e.CalDAVUsername == "" || e.CalDAVPassword == "" {
			return fmt.Errorf("CALDAV_USERNAME and CALDAV_PASSWORD must be set for the caldav sink")
		}
	default:
		return fmt.Errorf("unknown TASK_SINK %q", e.Sink)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
