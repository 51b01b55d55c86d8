package services

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

type PaidMessageData struct {
	AppName   string
	BuyerName string
	Folio     string
	Numbers   []int
	Total     int
	DrawAt    time.Time
}

var monthsES = [...]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// FormatDrawDate renders 06/Mar/2026 – 8:00 PM.
func FormatDrawDate(t time.Time) string {
	return fmt.Sprintf("%02d/%s/%d – %s", t.Day(), monthsES[t.Month()-1], t.Year(), t.Format("3:04 PM"))
}

// FormatNumbers zero-pads and sorts ticket numbers: "05, 10, 15".
func FormatNumbers(numbers []int) string {
	sorted := append([]int(nil), numbers...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, n := range sorted {
		parts[i] = fmt.Sprintf("%02d", n)
	}
	return strings.Join(parts, ", ")
}

// PaidMessage is the receipt sent to the buyer once payment is confirmed.
func PaidMessage(d PaidMessageData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ PAGO CONFIRMADO – %s\n", d.AppName)
	fmt.Fprintf(&b, "Hola %s, tu pago quedó registrado.\n", d.BuyerName)
	fmt.Fprintf(&b, "Folio: %s\n", d.Folio)
	fmt.Fprintf(&b, "Boletos: %s\n", FormatNumbers(d.Numbers))
	fmt.Fprintf(&b, "Total pagado: $%d MXN\n", d.Total)
	fmt.Fprintf(&b, "Sorteo: %s (CDMX)\n\n", FormatDrawDate(d.DrawAt))
	b.WriteString("📌 Guarda este mensaje como comprobante.\n")
	b.WriteString("🔄 Si cambiaste de número contáctanos para actualizar tus datos.\n")
	b.WriteString("🔞 Participación exclusiva para mayores de 18 años.")
	return b.String()
}

// WaLink builds the one-click wa.me link. phone is E.164 digits without '+'.
func WaLink(phone, text string) string {
	return "https://wa.me/" + strings.TrimPrefix(phone, "+") + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
