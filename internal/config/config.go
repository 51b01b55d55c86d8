package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DrawTimeLayout = "2006-01-02 15:04:05"

// Config holds every setting read from the environment (.env supported).
type Config struct {
	Port string

	DatabaseDriver string // postgres, libsql, sqlite
	DatabaseURL    string
	TursoAuthToken string
	DBMaxIdle      int
	DBMaxOpen      int

	AppName           string
	OrganizerName     string
	OrganizerLocation string
	WhatsappPhone     string
	TicketPrice       int
	MaxTickets        int
	PoolSize          int
	DrawAt            time.Time
	FolioPrefix       string
	PublicBaseURL     string

	TelegramToken    string
	AdminTelegramIDs []int64

	LogFile string

	InitialAdminUsername     string
	InitialAdminTempPassword string
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load() // Load .env file if exists

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    getEnv("DATABASE_URL", "rifa.db"),
		TursoAuthToken: os.Getenv("TURSO_AUTH_TOKEN"),
		DBMaxIdle:      getInt("DB_MAX_IDLE", 10),
		DBMaxOpen:      getInt("DB_MAX_OPEN", 100),

		AppName:           getEnv("APP_NAME", "Rifa Élite 100"),
		OrganizerName:     os.Getenv("ORGANIZER_NAME"),
		OrganizerLocation: os.Getenv("ORGANIZER_LOCATION"),
		WhatsappPhone:     getEnv("WHATSAPP_PHONE_E164", "52XXXXXXXXXX"),
		TicketPrice:       getInt("TICKET_PRICE_MXN", 150),
		MaxTickets:        getInt("MAX_TICKETS_PER_PURCHASE", 3),
		PoolSize:          getInt("POOL_SIZE", 100),
		FolioPrefix:       getEnv("FOLIO_PREFIX", "RF26"),
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		AdminTelegramIDs: ParseIDs(os.Getenv("ADMIN_TELEGRAM_IDS")),

		LogFile: os.Getenv("LOG_FILE"),

		InitialAdminUsername:     getEnv("INITIAL_ADMIN_USERNAME", "Mendez"),
		InitialAdminTempPassword: os.Getenv("INITIAL_ADMIN_TEMP_PASSWORD"),
	}

	drawStr := getEnv("DRAW_AT_LOCAL", "2026-03-06 20:00:00")
	drawAt, err := time.ParseInLocation(DrawTimeLayout, drawStr, time.Local)
	if err != nil {
		log.Printf("DRAW_AT_LOCAL inválido (%q), usando valor por defecto", drawStr)
		drawAt, _ = time.ParseInLocation(DrawTimeLayout, "2026-03-06 20:00:00", time.Local)
	}
	cfg.DrawAt = drawAt

	return cfg
}

// ParseIDs turns a comma separated list of Telegram IDs into int64s, skipping garbage.
func ParseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
