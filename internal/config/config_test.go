package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TICKET_PRICE_MXN", "no-es-numero")
	t.Setenv("MAX_TICKETS_PER_PURCHASE", "5")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("PUBLIC_BASE_URL", "https://rifa.example.com/")
	t.Setenv("DRAW_AT_LOCAL", "2026-04-01 19:30:00")

	cfg := Load()

	assert.Equal(t, 150, cfg.TicketPrice)
	assert.Equal(t, 5, cfg.MaxTickets)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "https://rifa.example.com", cfg.PublicBaseURL)
	assert.Equal(t, 2026, cfg.DrawAt.Year())
	assert.Equal(t, time.April, cfg.DrawAt.Month())
	assert.Equal(t, 19, cfg.DrawAt.Hour())
}

func TestParseIDs(t *testing.T) {
	assert.Equal(t, []int64{12, 34}, ParseIDs(" 12, x ,34,,"))
	assert.Nil(t, ParseIDs(""))
}
