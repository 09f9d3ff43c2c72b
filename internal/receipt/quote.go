package receipt

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
)

const shareBaseURL = "https://wa.me/?text="

type QuoteInput struct {
	Lines    []domain.LineItem
	Totals   domain.Totals
	Settings domain.Settings
	Customer *domain.Customer
	Now      time.Time
	Location *time.Location
}

// Folio derives the quote number from the last six digits of the timestamp.
func Folio(now time.Time) string {
	millis := fmt.Sprintf("%06d", now.UnixMilli())
	return "COT-" + millis[len(millis)-6:]
}

// Quote renders the active ticket as a priced quote. Quotes are not persisted
// and have no stock effect.
func Quote(in QuoteInput) domain.QuoteResponse {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	settings := in.Settings
	storeName := settings.StoreName
	if storeName == "" {
		storeName = "Mi Tienda"
	}
	folio := Folio(in.Now)
	date := in.Now.In(loc).Format("02/01/2006")

	lines := []string{center(storeName)}
	if settings.BusinessAddress != "" {
		lines = append(lines, center(settings.BusinessAddress))
	}
	if settings.BusinessPhone != "" {
		lines = append(lines, center("Tel: "+settings.BusinessPhone))
	}
	lines = append(lines, center("COTIZACIÓN"), "Folio: "+folio, "Fecha: "+date)
	if in.Customer != nil {
		lines = append(lines, "Cliente: "+in.Customer.FullName)
	}
	lines = append(lines, separator)

	var msg strings.Builder
	fmt.Fprintf(&msg, "*COTIZACIÓN - %s*\n", storeName)
	fmt.Fprintf(&msg, "Folio: %s\n", folio)
	fmt.Fprintf(&msg, "Fecha: %s\n", date)
	if in.Customer != nil {
		fmt.Fprintf(&msg, "Cliente: %s\n", in.Customer.FullName)
	}
	msg.WriteString(separator + "\n")

	for _, line := range in.Lines {
		lineTotal, _ := pricing.LineAmounts(line)
		name := line.ProductName
		if line.VariantName != "" {
			name += " " + line.VariantName
		}
		entry := fmt.Sprintf("%d x %s", line.Quantity, name)
		lines = append(lines, twoColumns(entry, money(lineTotal)))
		fmt.Fprintf(&msg, "%s - %s\n", entry, money(lineTotal))
	}

	lines = append(lines, separator)
	if !in.Totals.Subtotal.Equal(in.Totals.Total) {
		lines = append(lines, twoColumns("Subtotal:", money(in.Totals.Subtotal)))
	}
	if in.Totals.TaxAmount.IsPositive() {
		lines = append(lines, twoColumns("IVA:", money(in.Totals.TaxAmount)))
	}
	lines = append(lines, twoColumns("TOTAL:", money(in.Totals.Total)))

	msg.WriteString(separator + "\n")
	fmt.Fprintf(&msg, "*TOTAL: %s*\n\n", money(in.Totals.Total))
	if settings.BusinessAddress != "" {
		msg.WriteString(settings.BusinessAddress + "\n")
	}
	if settings.BusinessPhone != "" {
		msg.WriteString("Tel: " + settings.BusinessPhone + "\n")
	}
	if settings.QuoteNotes != "" {
		lines = append(lines, "", settings.QuoteNotes)
		msg.WriteString("\n" + settings.QuoteNotes)
	}

	message := msg.String()
	return domain.QuoteResponse{
		Folio:        folio,
		Lines:        lines,
		Text:         strings.Join(lines, "\n"),
		ShareMessage: message,
		ShareURL:     shareBaseURL + url.QueryEscape(message),
		Totals:       in.Totals,
	}
}
