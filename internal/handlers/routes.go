package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"rifa-app/internal/audit"
	"rifa-app/internal/middleware"
)

// NewRouter wires every route. adminAuth guards /admin/api.
func NewRouter(h *Handler, adminAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public
	r.Route("/api", func(r chi.Router) {
		r.Use(h.withRaffle)
		r.Get("/raffle", h.RaffleInfo)
		r.Get("/tickets", h.Tickets)
		r.Post("/requests", h.CreateRequest)
		r.Post("/verify", h.Verify)
		r.Get("/verify/{folio}/qr.png", h.VerifyQR)
		r.Get("/results", h.Results)
	})

	// Admin
	r.Route("/admin/api", func(r chi.Router) {
		r.Use(adminAuth)
		r.Post("/password", h.AdminChangePassword)
		r.Get("/admins", h.AdminUsers)
		r.Post("/admins", h.AdminCreateUser)
		r.Get("/audit", h.AdminAudit)

		r.Group(func(r chi.Router) {
			r.Use(h.withRaffle)
			r.Get("/dashboard", h.AdminDashboard)
			r.Get("/purchases", h.AdminPurchases)
			r.Get("/purchases/{id}", h.AdminPurchaseDetail)
			r.Post("/purchases/{id}/approve", h.transitionHandler(audit.PurchaseApproved, approve))
			r.Post("/purchases/{id}/mark-paid", h.transitionHandler(audit.PurchaseMarkPaid, markPaid))
			r.Post("/purchases/{id}/cancel", h.transitionHandler(audit.PurchaseCancelled, cancel))
			r.Put("/purchases/{id}/notes", h.AdminPurchaseNotes)
			r.Get("/tickets", h.AdminTickets)
			r.Post("/tickets/{id}/force-free", h.AdminForceFree)
			r.Post("/manual-purchases", h.AdminManualPurchase)
			r.Get("/winners", h.AdminWinners)
			r.Post("/winners", h.AdminPublishWinners)
			r.Get("/reports", h.AdminReports)
		})
	})

	return r
}
