package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rifa-app/internal/audit"
	"rifa-app/internal/middleware"
	"rifa-app/internal/models"
	"rifa-app/internal/raffle"
	"rifa-app/internal/services"
)

func (h *Handler) record(r *http.Request, action, entityType string, entityID uint, meta map[string]any) {
	e := audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   audit.ID(entityID),
		Meta:       meta,
		IP:         middleware.ClientIP(r),
	}
	if p := middleware.PrincipalFrom(r.Context()); p != nil {
		e.AdminID = p.AdminID
		if p.TelegramID != 0 {
			if e.Meta == nil {
				e.Meta = map[string]any{}
			}
			e.Meta["telegram_id"] = p.TelegramID
		}
	}
	h.Audit.Record(r.Context(), e)
}

// GET /admin/api/dashboard
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	rf := raffleFrom(r)
	stats, err := h.Raffles.Stats(r.Context(), rf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := h.Raffles.ListPurchases(r.Context(), rf.ID, models.PurchasePending)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]purchaseView, len(pending))
	for i := range pending {
		views[i] = h.adminView(rf, &pending[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raffle":  rf,
		"stats":   stats,
		"pending": views,
		"admin":   middleware.PrincipalFrom(r.Context()),
	})
}

// GET /admin/api/purchases?status=PAID
func (h *Handler) AdminPurchases(w http.ResponseWriter, r *http.Request) {
	var status models.PurchaseStatus
	if q := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); q != "" {
		st, ok := models.ParsePurchaseStatus(q)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Estado inválido."})
			return
		}
		status = st
	}
	rf := raffleFrom(r)
	purchases, err := h.Raffles.ListPurchases(r.Context(), rf.ID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]purchaseView, len(purchases))
	for i := range purchases {
		views[i] = h.adminView(rf, &purchases[i])
	}
	writeJSON(w, http.StatusOK, views)
}

// GET /admin/api/purchases/{id}
func (h *Handler) AdminPurchaseDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rf := raffleFrom(r)
	p, err := h.Raffles.GetPurchase(r.Context(), rf.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.adminView(rf, p))
}

type transitionFunc func(h *Handler, r *http.Request, raffleID, id uint) (*models.Purchase, error)

// transitionHandler serves approve, mark-paid and cancel. Legality is decided by the raffle service.
func (h *Handler) transitionHandler(action string, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		rf := raffleFrom(r)
		p, err := fn(h, r, rf.ID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		h.record(r, action, "Purchase", p.ID, map[string]any{"folio": p.Folio})
		v := h.adminView(rf, p)
		if p.Status == models.PurchasePaid {
			h.notify(fmt.Sprintf("✅ Pago confirmado: %s\n👤 %s\n🔢 Boletos: %s\n💰 $%d MXN",
				p.Folio, p.BuyerName, services.FormatNumbers(v.Numbers), v.Total))
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func approve(h *Handler, r *http.Request, raffleID, id uint) (*models.Purchase, error) {
	return h.Raffles.ApprovePurchase(r.Context(), raffleID, id)
}

func markPaid(h *Handler, r *http.Request, raffleID, id uint) (*models.Purchase, error) {
	return h.Raffles.MarkPurchasePaid(r.Context(), raffleID, id)
}

func cancel(h *Handler, r *http.Request, raffleID, id uint) (*models.Purchase, error) {
	return h.Raffles.CancelPurchase(r.Context(), raffleID, id)
}

type notesBody struct {
	Notes string `json:"notes"`
}

// PUT /admin/api/purchases/{id}/notes
func (h *Handler) AdminPurchaseNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body notesBody
	if !decode(w, r, &body) {
		return
	}
	rf := raffleFrom(r)
	p, err := h.Raffles.UpdatePurchaseNotes(r.Context(), rf.ID, id, strings.TrimSpace(body.Notes))
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, audit.PurchaseNoteUpdated, "Purchase", p.ID, map[string]any{"folio": p.Folio})
	writeJSON(w, http.StatusOK, h.adminView(rf, p))
}

// GET /admin/api/tickets?q=15
func (h *Handler) AdminTickets(w http.ResponseWriter, r *http.Request) {
	rf := raffleFrom(r)
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		states, err := h.Raffles.ListTicketStatuses(r.Context(), rf.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, states)
		return
	}

	number, err := strconv.Atoi(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Busca por número de boleto."})
		return
	}
	owner, err := h.Raffles.FindTicketByNumber(r.Context(), rf.ID, number)
	if errors.Is(err, raffle.ErrTicketNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Boleto no encontrado."})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"ticket": owner.Ticket}
	if owner.Purchase != nil {
		resp["purchase"] = h.adminView(rf, owner.Purchase)
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /admin/api/tickets/{id}/force-free
func (h *Handler) AdminForceFree(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	t, err := h.Raffles.ForceFreeTicket(r.Context(), raffleFrom(r).ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, audit.TicketForceFree, "Ticket", t.ID, map[string]any{"ticket": t.Number})
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":  t,
		"message": fmt.Sprintf("Boleto %02d liberado.", t.Number),
	})
}

type manualPurchaseBody struct {
	Numbers    []int  `json:"numbers" validate:"required,min=1"`
	BuyerName  string `json:"buyer_name" validate:"required,max=120"`
	BuyerPhone string `json:"buyer_phone" validate:"required"`
	Status     string `json:"status" validate:"required,oneof=APPROVED PAID"`
	Notes      string `json:"notes"`
}

// POST /admin/api/manual-purchases
func (h *Handler) AdminManualPurchase(w http.ResponseWriter, r *http.Request) {
	var body manualPurchaseBody
	if !decode(w, r, &body) {
		return
	}
	rf := raffleFrom(r)
	p, err := h.Raffles.CreateManualPurchase(r.Context(), rf.ID, raffle.ManualPurchaseRequest{
		Numbers:    body.Numbers,
		BuyerName:  body.BuyerName,
		BuyerPhone: body.BuyerPhone,
		Status:     models.PurchaseStatus(body.Status),
		Notes:      body.Notes,
		IPAddress:  middleware.ClientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, audit.ManualPurchaseCreated, "Purchase", p.ID, map[string]any{
		"folio": p.Folio, "numbers": p.Numbers(), "status": p.Status,
	})
	writeJSON(w, http.StatusCreated, h.adminView(rf, p))
}

// GET /admin/api/winners
func (h *Handler) AdminWinners(w http.ResponseWriter, r *http.Request) {
	winners, err := h.Raffles.GetWinners(r.Context(), raffleFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, winners)
}

type winnersBody struct {
	First  int `json:"first" validate:"required"`
	Second int `json:"second" validate:"required"`
	Third  int `json:"third" validate:"required"`
}

// POST /admin/api/winners
func (h *Handler) AdminPublishWinners(w http.ResponseWriter, r *http.Request) {
	var body winnersBody
	if !decode(w, r, &body) {
		return
	}
	nums := [3]int{body.First, body.Second, body.Third}
	winners, err := h.Raffles.PublishWinners(r.Context(), raffleFrom(r).ID, nums)
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, audit.WinnersPublished, "Winners", winners.ID, map[string]any{"nums": nums})
	writeJSON(w, http.StatusOK, winners)
}

// GET /admin/api/audit?limit=100
func (h *Handler) AdminAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > audit.DefaultLimit {
		limit = audit.DefaultLimit
	}
	rows, err := h.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type passwordBody struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required"`
	Confirm string `json:"confirm_password" validate:"required,eqfield=New"`
}

// POST /admin/api/password
func (h *Handler) AdminChangePassword(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil || p.AdminID == nil {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Solo cuentas de usuario pueden cambiar contraseña."})
		return
	}
	var body passwordBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.Admins.ChangePassword(r.Context(), *p.AdminID, body.Current, body.New); err != nil {
		writeError(w, err)
		return
	}
	h.record(r, audit.PasswordChanged, "AdminUser", *p.AdminID, map[string]any{"username": p.Username})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Contraseña actualizada."})
}

// GET /admin/api/admins
func (h *Handler) AdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Admins.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createAdminBody struct {
	Username     string `json:"username" validate:"required,max=80"`
	TempPassword string `json:"temp_password" validate:"required"`
}

// POST /admin/api/admins
func (h *Handler) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var body createAdminBody
	if !decode(w, r, &body) {
		return
	}
	u, err := h.Admins.Create(r.Context(), body.Username, body.TempPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	h.record(r, audit.AdminCreated, "AdminUser", u.ID, map[string]any{"username": u.Username})
	writeJSON(w, http.StatusCreated, u)
}

// GET /admin/api/reports
func (h *Handler) AdminReports(w http.ResponseWriter, r *http.Request) {
	rf := raffleFrom(r)
	stats, err := h.Raffles.Stats(r.Context(), rf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	paid, err := h.Raffles.ListPurchases(r.Context(), rf.ID, models.PurchasePaid)
	if err != nil {
		writeError(w, err)
		return
	}
	type row struct {
		Folio     string `json:"folio"`
		BuyerName string `json:"buyer_name"`
		Phone     string `json:"phone"`
		Numbers   string `json:"numbers"`
		Total     int    `json:"total"`
		PaidAt    string `json:"paid_at,omitempty"`
	}
	rows := make([]row, len(paid))
	for i, p := range paid {
		rows[i] = row{
			Folio:     p.Folio,
			BuyerName: p.BuyerName,
			Phone:     p.BuyerPhone,
			Numbers:   services.FormatNumbers(p.Numbers()),
			Total:     p.TotalAmount(rf.TicketPrice),
		}
		if p.PaidAt != nil {
			rows[i].PaidAt = p.PaidAt.Format("2006-01-02 15:04")
		}
	}
	h.record(r, audit.ReportViewed, "Raffle", rf.ID, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"raffle":     rf,
		"stats":      stats,
		"total_sold": stats.TotalSold,
		"paid":       rows,
	})
}
