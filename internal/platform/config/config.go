package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config gathers every externally tunable knob so main stays lean and the
// services never read the environment themselves.
type Config struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	Lifecycle Lifecycle
	Gate      Gate
	Sweep     Sweep
	Calendar  Calendar
}

// Lifecycle holds the request state machine thresholds.
type Lifecycle struct {
	CreateHorizon        time.Duration // how far ahead a departure may be scheduled
	CreateGrace          time.Duration // how far in the past a departure is tolerated at create
	EditLock             time.Duration // minimum gap to departure for edits
	TrustCreateFloor     int
	TrustVerifyFloor     int // residents only, warden stage
	CooldownWindow       time.Duration
	CooldownLimit        int
	MonthlyVolumeLimit   int // creates beyond this in a calendar month are penalized
	MonthlyVolumePenalty int
	LateCancelPenalty    int
}

// Gate holds the checkpoint buffers.
type Gate struct {
	DepartureBuffer time.Duration // grace past scheduled departure, ordinary passes
	EmergencyBuffer time.Duration // grace past scheduled departure, emergency category
	EarlyBuffer     time.Duration // how early an exit may be attempted
}

// Sweep configures the expiration scheduler.
type Sweep struct {
	Interval             time.Duration
	Jitter               time.Duration
	StaleDepartureBuffer time.Duration // approved-but-never-exited cutoff
}

// Calendar configures holiday detection.
type Calendar struct {
	RestDays []time.Weekday
}

// FromEnv builds a Config from GATEPASS_* environment variables with defaults
// for local development.
func FromEnv() Config {
	return Config{
		Addr:          envString("GATEPASS_ADDR", ":8080"),
		LogLevel:      envString("GATEPASS_LOG_LEVEL", "info"),
		JWTSigningKey: envString("GATEPASS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresDSN:   envString("GATEPASS_POSTGRES_DSN", ""),
		RedisURL:      envString("GATEPASS_REDIS_URL", ""),
		KafkaBrokers:  envList("GATEPASS_KAFKA_BROKERS"),
		KafkaTopic:    envString("GATEPASS_KAFKA_TOPIC", "gatepass.events"),
		Lifecycle: Lifecycle{
			CreateHorizon:        envDuration("GATEPASS_CREATE_HORIZON", 7*24*time.Hour),
			CreateGrace:          envDuration("GATEPASS_CREATE_GRACE", 15*time.Minute),
			EditLock:             envDuration("GATEPASS_EDIT_LOCK", 2*time.Hour),
			TrustCreateFloor:     envInt("GATEPASS_TRUST_CREATE_FLOOR", 30),
			TrustVerifyFloor:     envInt("GATEPASS_TRUST_VERIFY_FLOOR", 50),
			CooldownWindow:       envDuration("GATEPASS_COOLDOWN_WINDOW", 24*time.Hour),
			CooldownLimit:        envInt("GATEPASS_COOLDOWN_LIMIT", 3),
			MonthlyVolumeLimit:   envInt("GATEPASS_MONTHLY_VOLUME_LIMIT", 4),
			MonthlyVolumePenalty: envInt("GATEPASS_MONTHLY_VOLUME_PENALTY", 2),
			LateCancelPenalty:    envInt("GATEPASS_LATE_CANCEL_PENALTY", 10),
		},
		Gate: Gate{
			DepartureBuffer: envDuration("GATEPASS_DEPARTURE_BUFFER", 30*time.Minute),
			EmergencyBuffer: envDuration("GATEPASS_EMERGENCY_BUFFER", 24*time.Hour),
			EarlyBuffer:     envDuration("GATEPASS_EARLY_BUFFER", 2*time.Hour),
		},
		Sweep: Sweep{
			Interval:             envDuration("GATEPASS_SWEEP_INTERVAL", 5*time.Minute),
			Jitter:               envDuration("GATEPASS_SWEEP_JITTER", 30*time.Second),
			StaleDepartureBuffer: envDuration("GATEPASS_STALE_DEPARTURE_BUFFER", 2*time.Hour),
		},
		Calendar: Calendar{
			RestDays: envWeekdays("GATEPASS_REST_DAYS", []time.Weekday{time.Saturday, time.Sunday}),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

func envWeekdays(key string, fallback []time.Weekday) []time.Weekday {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var days []time.Weekday
	for _, p := range strings.Split(v, ",") {
		if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(p))]; ok {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return fallback
	}
	return days
}
