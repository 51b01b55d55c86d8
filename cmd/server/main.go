package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rifa-app/internal/admins"
	"rifa-app/internal/audit"
	"rifa-app/internal/config"
	"rifa-app/internal/db"
	"rifa-app/internal/handlers"
	"rifa-app/internal/logging"
	tgmiddleware "rifa-app/internal/middleware"
	"rifa-app/internal/raffle"
	"rifa-app/internal/services"
)

func main() {
	// 0. Load Config (Envars)
	cfg := config.Load()
	logging.Setup(cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Init Database
	gdb, err := db.Open(cfg)
	if err != nil {
		log.Fatal("Failed to init DB:", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("Failed to migrate DB:", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	log.Printf("Database initialized (%s)", cfg.DatabaseDriver)

	store := admins.NewStore(gdb)
	if cfg.InitialAdminTempPassword != "" {
		if u, created, err := store.EnsureInitial(ctx, cfg.InitialAdminUsername, cfg.InitialAdminTempPassword); err != nil {
			log.Printf("Warning: no se pudo crear el admin inicial: %v", err)
		} else if created {
			log.Printf("Admin inicial creado: %s", u.Username)
		}
	}

	// 2. Init Telegram Bot
	if cfg.TelegramToken == "" {
		log.Println("Warning: TELEGRAM_TOKEN not set. Bot features disabled.")
	}
	notifier, err := services.NewNotifier(cfg.TelegramToken, cfg.AdminTelegramIDs)
	if err != nil {
		log.Printf("Warning: Failed to init Telegram bot: %v", err)
	}
	go notifier.Listen(ctx)

	// 3. Setup Router
	recorder := audit.NewRecorder(gdb)
	h := &handlers.Handler{
		Raffles:       raffle.NewService(gdb, raffle.WithFolioGenerator(raffle.NewFolioGenerator(cfg.FolioPrefix))),
		Admins:        store,
		Audit:         recorder,
		Notifier:      notifier,
		AppName:       cfg.AppName,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	auth := &tgmiddleware.Auth{
		Admins:           store,
		Audit:            recorder,
		BotToken:         cfg.TelegramToken,
		AdminTelegramIDs: cfg.AdminTelegramIDs,
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(h, auth.AdminAuth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 4. Start
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error apagando servidor: %v", err)
		}
	}()

	fmt.Printf("Servidor corriendo en http://localhost:%s\n", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
