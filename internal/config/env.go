package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

type Env struct {
	AppAddr string
	GinMode string
	AppEnv  string

	Backend     string
	DBUser      string
	DBPass      string
	DBHost      string
	DBName      string
	CatalogFile string

	// HoldDefaultTTL applies when a request carries no TTL. Zero means such holds never expire.
	HoldDefaultTTL time.Duration
	HoldMaxTTL     time.Duration
	SweepInterval  time.Duration
	SweepBatch     int
	SweepRetry     time.Duration

	HoldTokenSecret string
	LogFile         string

	OTLPEndpoint string
	OTLPInsecure bool
	OTLPHeaders  map[string]string

	CORSAllowedOrigins []string
}

func LoadEnv() Env {
	appAddr := strings.TrimSpace(os.Getenv("APP_ADDR"))
	if appAddr == "" {
		appAddr = ":8080"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("INVENTORY_BACKEND")))
	if backend != BackendMemory {
		backend = BackendMySQL
	}

	return Env{
		AppAddr: appAddr,
		GinMode: ginMode,
		AppEnv:  envOr("APP_ENV", "development"),

		Backend:     backend,
		DBUser:      envOr("DB_USER", "root"),
		DBPass:      os.Getenv("DB_PASS"),
		DBHost:      envOr("DB_HOST", "127.0.0.1:3306"),
		DBName:      envOr("DB_NAME", "travel_app"),
		CatalogFile: strings.TrimSpace(os.Getenv("CATALOG_FILE")),

		HoldDefaultTTL: durationOr("HOLD_DEFAULT_TTL", 0),
		HoldMaxTTL:     durationOr("HOLD_MAX_TTL", 24*time.Hour),
		SweepInterval:  durationOr("SWEEP_INTERVAL", 30*time.Second),
		SweepBatch:     intOr("SWEEP_BATCH", 100),
		SweepRetry:     durationOr("SWEEP_RETRY_DELAY", 10*time.Minute),

		HoldTokenSecret: strings.TrimSpace(os.Getenv("HOLD_TOKEN_SECRET")),
		LogFile:         strings.TrimSpace(os.Getenv("LOG_FILE")),

		OTLPEndpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure: strings.EqualFold(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")), "true"),
		OTLPHeaders:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),

		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("[CONFIG] %s=%q tidak valid, pakai default %s", key, raw, def)
		return def
	}
	return d
}

func intOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("[CONFIG] %s=%q tidak valid, pakai default %d", key, raw, def)
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseHeaders reads the OTLP "k1=v1,k2=v2" header format.
func parseHeaders(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
