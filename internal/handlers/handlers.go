package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"rifa-app/internal/admins"
	"rifa-app/internal/audit"
	"rifa-app/internal/middleware"
	"rifa-app/internal/models"
	"rifa-app/internal/phone"
	"rifa-app/internal/raffle"
	"rifa-app/internal/services"
)

var validate = validator.New()

// Notifier is where admin alerts go (Telegram in production).
type Notifier interface {
	Notify(text string)
}

type Handler struct {
	Raffles  *raffle.Service
	Admins   *admins.Store
	Audit    *audit.Recorder
	Notifier Notifier

	AppName       string
	PublicBaseURL string
}

type ctxKey struct{}

// withRaffle resolves the active raffle once per request. Every operation
// below uses that explicit scope.
func (h *Handler) withRaffle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rf, err := h.Raffles.ActiveRaffle(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, rf)))
	})
}

func raffleFrom(r *http.Request) *models.Raffle {
	rf, _ := r.Context().Value(ctxKey{}).(*models.Raffle)
	return rf
}

// purchaseView is a purchase as the API shows it.
type purchaseView struct {
	*models.Purchase
	Numbers    []int  `json:"numbers"`
	Total      int    `json:"total"`
	PhonePlus  string `json:"phone_display"`
	VerifyURL  string `json:"verify_url,omitempty"`
	WaLink     string `json:"wa_link,omitempty"`
	WaMessage  string `json:"wa_message,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	StatusText string `json:"status_text"`
}

var statusText = map[models.PurchaseStatus]string{
	models.PurchasePending:   "Pendiente",
	models.PurchaseApproved:  "Apartado",
	models.PurchasePaid:      "Pagado",
	models.PurchaseCancelled: "Cancelado",
}

func (h *Handler) view(rf *models.Raffle, p *models.Purchase) purchaseView {
	v := purchaseView{
		Purchase:   p,
		Numbers:    p.Numbers(),
		Total:      p.TotalAmount(rf.TicketPrice),
		PhonePlus:  phone.FormatPlus(p.BuyerPhone),
		VerifyURL:  h.verifyURL(p.Folio),
		StatusText: statusText[p.Status],
	}
	if p.Status == models.PurchasePaid {
		v.WaMessage = services.PaidMessage(services.PaidMessageData{
			AppName:   h.AppName,
			BuyerName: p.BuyerName,
			Folio:     p.Folio,
			Numbers:   v.Numbers,
			Total:     v.Total,
			DrawAt:    rf.DrawAt,
		})
		v.WaLink = services.WaLink(p.BuyerPhone, v.WaMessage)
	}
	return v
}

// adminView adds fields that only staff may see.
func (h *Handler) adminView(rf *models.Raffle, p *models.Purchase) purchaseView {
	v := h.view(rf, p)
	if p.IPAddress != nil {
		v.IPAddress = *p.IPAddress
	}
	return v
}

func (h *Handler) verifyURL(folio string) string {
	return h.PublicBaseURL + "/verify?folio=" + folio
}

func (h *Handler) notify(text string) {
	if h.Notifier != nil {
		h.Notifier.Notify(text)
	}
}

// GET /api/raffle
func (h *Handler) RaffleInfo(w http.ResponseWriter, r *http.Request) {
	rf := raffleFrom(r)
	stats, err := h.Raffles.Stats(r.Context(), rf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	winners, err := h.Raffles.GetWinners(r.Context(), rf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"raffle":    rf,
		"draw_text": services.FormatDrawDate(rf.DrawAt),
		"tickets":   stats.Tickets,
		"winners":   winners,
		"published": winners.Published(),
	})
}

// GET /api/tickets
func (h *Handler) Tickets(w http.ResponseWriter, r *http.Request) {
	states, err := h.Raffles.ListTicketStatuses(r.Context(), raffleFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

type reserveBody struct {
	Numbers    []int  `json:"numbers" validate:"required,min=1"`
	BuyerName  string `json:"buyer_name" validate:"required,max=120"`
	BuyerPhone string `json:"buyer_phone" validate:"required"`
}

// POST /api/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body reserveBody
	if !decode(w, r, &body) {
		return
	}
	rf := raffleFrom(r)

	p, err := h.Raffles.ReserveTickets(r.Context(), rf.ID, raffle.ReserveRequest{
		Numbers:    body.Numbers,
		BuyerName:  body.BuyerName,
		BuyerPhone: body.BuyerPhone,
		IPAddress:  middleware.ClientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	v := h.view(rf, p)
	log.Printf("Solicitud %s creada: boletos %v", p.Folio, v.Numbers)
	h.notify(fmt.Sprintf("🎟️ Nueva solicitud: %s\n👤 Cliente: %s\n📞 Tel: %s\n🔢 Boletos: %s\n💰 Total: $%d MXN",
		p.Folio, p.BuyerName, v.PhonePlus, services.FormatNumbers(v.Numbers), v.Total))
	writeJSON(w, http.StatusCreated, v)
}

type verifyBody struct {
	Folio      string `json:"folio" validate:"required"`
	BuyerPhone string `json:"buyer_phone" validate:"required"`
}

// POST /api/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if !decode(w, r, &body) {
		return
	}
	rf := raffleFrom(r)
	p, err := h.Raffles.FindPurchase(r.Context(), rf.ID, body.Folio, body.BuyerPhone)
	if err != nil {
		writeError(w, err)
		return
	}
	v := h.view(rf, p)
	// the buyer already has the receipt; the wa.me link is for staff
	v.WaLink, v.WaMessage = "", ""
	writeJSON(w, http.StatusOK, v)
}

// GET /api/verify/{folio}/qr.png
func (h *Handler) VerifyQR(w http.ResponseWriter, r *http.Request) {
	folio := raffle.NormalizeFolio(chi.URLParam(r, "folio"))
	if folio == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Folio inválido."})
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size > 1024 {
		size = 1024
	}
	png, err := services.VerificationQR(h.verifyURL(folio), size)
	if err != nil {
		log.Printf("Error generando QR para %s: %v", folio, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "No se pudo generar el QR."})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

// GET /api/results
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	winners, err := h.Raffles.GetWinners(r.Context(), raffleFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"published": winners.Published(),
		"winners":   winners,
	})
}

type errorBody struct {
	Error  string `json:"error"`
	Number *int   `json:"number,omitempty"`
	Field  string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error escribiendo respuesta: %v", err)
	}
}

// writeError maps core errors to HTTP statuses. Storage failures are logged
// and hidden behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve *raffle.ValidationError
		tu *raffle.TicketUnavailableError
		te *raffle.TransitionError
		pe *admins.PolicyError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Field: ve.Field})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: pe.Message})
	case errors.As(err, &tu):
		writeJSON(w, http.StatusConflict, errorBody{Error: tu.Error(), Number: &tu.Number})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, errorBody{Error: transitionMessage(te)})
	case errors.Is(err, raffle.ErrTicketNotFound):
		writeJSON(w, http.StatusConflict, errorBody{Error: "Uno o más boletos no existen."})
	case errors.Is(err, raffle.ErrDuplicatePendingRequest):
		writeJSON(w, http.StatusConflict, errorBody{Error: "Ya tienes una solicitud pendiente. Espera a que la revisemos."})
	case errors.Is(err, raffle.ErrTicketPaid):
		writeJSON(w, http.StatusConflict, errorBody{Error: "Este boleto pertenece a una compra PAGADA. No se puede liberar aquí."})
	case errors.Is(err, raffle.ErrTicketContended):
		writeJSON(w, http.StatusConflict, errorBody{Error: "El boleto cambió de dueño mientras se liberaba. Revisa y vuelve a intentar."})
	case errors.Is(err, raffle.ErrRaffleClosed):
		writeJSON(w, http.StatusConflict, errorBody{Error: "Esta rifa ya no acepta apartados."})
	case errors.Is(err, raffle.ErrPurchaseNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "No encontramos una compra con ese folio y teléfono."})
	case errors.Is(err, raffle.ErrTicketIDNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Boleto no encontrado."})
	case errors.Is(err, admins.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Admin no encontrado."})
	case errors.Is(err, admins.ErrUserExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: "Ese usuario ya existe."})
	case errors.Is(err, admins.ErrInvalidCredentials):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Contraseña actual incorrecta."})
	case errors.Is(err, raffle.ErrNoActiveRaffle):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "No hay rifa activa."})
	default:
		log.Printf("Error interno: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Ocurrió un error, intenta de nuevo."})
	}
}

func transitionMessage(te *raffle.TransitionError) string {
	switch {
	case te.To == models.PurchaseApproved:
		return "Solo puedes aprobar solicitudes PENDIENTES."
	case te.To == models.PurchasePaid:
		return "Solo puedes marcar como pagado una solicitud pendiente o aprobada."
	case te.To == models.PurchaseCancelled && te.From == models.PurchasePaid:
		return "No puedes cancelar una compra pagada (por integridad)."
	}
	return te.Error()
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "JSON inválido: " + err.Error()})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Revisa el formulario: " + validationSummary(err)})
		return false
	}
	return true
}

func validationSummary(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	f := verrs[0]
	return fmt.Sprintf("%s (%s)", f.Field(), f.Tag())
}

func parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "ID inválido."})
		return 0, false
	}
	return uint(id), true
}
