// Command seed bootstraps the database: schema, the active raffle with its
// ticket pool, and the first admin account.
package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/pflag"

	"rifa-app/internal/admins"
	"rifa-app/internal/config"
	"rifa-app/internal/db"
	"rifa-app/internal/logging"
	"rifa-app/internal/raffle"
)

func main() {
	cfg := config.Load()

	name := pflag.String("name", cfg.AppName, "raffle name")
	price := pflag.Int("price", cfg.TicketPrice, "ticket price in MXN")
	maxTickets := pflag.Int("max-tickets", cfg.MaxTickets, "max tickets per purchase")
	pool := pflag.Int("pool", cfg.PoolSize, "number of tickets")
	drawAt := pflag.String("draw-at", cfg.DrawAt.Format(config.DrawTimeLayout), "draw time, local")
	adminUser := pflag.String("admin", cfg.InitialAdminUsername, "initial admin username")
	adminPassword := pflag.String("admin-password", cfg.InitialAdminTempPassword, "initial admin temporary password (skipped if empty)")
	pflag.Parse()

	logging.Setup(cfg.LogFile)

	draw, err := time.ParseInLocation(config.DrawTimeLayout, *drawAt, time.Local)
	if err != nil {
		log.Fatalf("--draw-at inválido: %v", err)
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		log.Fatal("Failed to init DB:", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("Failed to migrate DB:", err)
	}

	ctx := context.Background()
	svc := raffle.NewService(gdb)
	rf, err := svc.SeedRaffle(ctx, raffle.SeedRequest{
		Name:              *name,
		OrganizerName:     cfg.OrganizerName,
		OrganizerLocation: cfg.OrganizerLocation,
		WhatsappPhone:     cfg.WhatsappPhone,
		TicketPrice:       *price,
		MaxTickets:        *maxTickets,
		PoolSize:          *pool,
		DrawAt:            draw,
	})
	if err != nil {
		log.Fatal("Seed failed:", err)
	}
	log.Printf("Rifa activa: %s (id %d, %d boletos)", rf.Name, rf.ID, rf.PoolSize)

	if *adminPassword == "" {
		log.Println("Sin --admin-password, no se crea admin inicial")
		return
	}
	u, created, err := admins.NewStore(gdb).EnsureInitial(ctx, *adminUser, *adminPassword)
	if err != nil {
		log.Fatal("Admin inicial:", err)
	}
	if created {
		log.Printf("Admin inicial creado: %s (debe cambiar contraseña)", u.Username)
	} else {
		log.Println("Ya existen admins, no se crea ninguno")
	}
}
