package receipt

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/pricing"
)

// Width is the character width of a 58mm thermal roll.
const Width = 32

const separator = "--------------------------------"

type Input struct {
	Sale        domain.Sale
	Settings    domain.Settings
	Customer    *domain.Customer
	CashierName string
	Location    *time.Location
}

// Build projects a persisted sale into printable lines. It never reads storage.
func Build(in Input) domain.ReceiptResponse {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	sale := in.Sale
	settings := in.Settings

	storeName := settings.StoreName
	if storeName == "" {
		storeName = "Mi Tienda"
	}
	header := []string{center(storeName)}
	if settings.BusinessAddress != "" {
		header = append(header, center(settings.BusinessAddress))
	}
	if settings.BusinessPhone != "" {
		header = append(header, center("Tel: "+settings.BusinessPhone))
	}

	body := make([]string, 0, 32)
	if sale.Status == domain.SaleRefund {
		body = append(body, center("DEVOLUCION"))
	}
	body = append(body,
		fmt.Sprintf("Ticket: #%d", sale.TicketNumber),
		"Fecha: "+sale.CreatedAt.In(loc).Format("02/01/2006 15:04"),
	)
	cashier := in.CashierName
	if cashier == "" {
		cashier = "Cajero"
	}
	body = append(body, "Atendido por: "+cashier)
	if in.Customer != nil {
		body = append(body, "Cliente: "+in.Customer.FullName)
		if in.Customer.PointsBalance > 0 {
			body = append(body, fmt.Sprintf("Balance de puntos: %d", in.Customer.PointsBalance))
		}
	} else if sale.CustomerInfo != "" {
		body = append(body, "Cliente: "+sale.CustomerInfo)
	}
	body = append(body, separator)
	if settings.TicketHeader != "" {
		body = append(body, settings.TicketHeader)
	}

	itemsTotal := decimal.Zero
	for _, item := range sale.Items {
		name := item.ProductName
		if item.VariantName != "" {
			name += " " + item.VariantName
		}
		body = append(body, twoColumns(fmt.Sprintf("%d x %s", item.Quantity, name), money(item.Subtotal)))
		if item.Quantity > 1 {
			body = append(body, "  @ "+money(item.UnitPrice))
		}
		if item.DiscountAmount.IsPositive() {
			body = append(body, "  Desc: -"+money(item.DiscountAmount))
		}
		if item.RefundedQuantity > 0 {
			body = append(body, fmt.Sprintf("  Devuelto: %d (-%s)", item.RefundedQuantity, money(item.RefundAmount)))
		}
		itemsTotal = itemsTotal.Add(item.Subtotal)
	}
	body = append(body, separator, twoColumns("Subtotal:", money(itemsTotal)))

	// Whatever the items do not explain is the coupon (plus rounding).
	extra := itemsTotal.Sub(sale.PointsDiscountAmount).Sub(sale.TotalAmount)
	if extra.IsPositive() {
		label := "Descuento:"
		if sale.CouponCode != "" {
			label = "Cupon (" + sale.CouponCode + "):"
		}
		body = append(body, twoColumns(label, "-"+money(extra)))
	}
	if sale.PointsRedeemed > 0 {
		body = append(body, twoColumns(fmt.Sprintf("Puntos usados (%d):", sale.PointsRedeemed), "-"+money(sale.PointsDiscountAmount)))
	}
	if sale.PointsEarned > 0 {
		body = append(body, twoColumns("Puntos ganados:", fmt.Sprintf("+%d", sale.PointsEarned)))
	}
	tax := pricing.TaxIncluded(sale.TotalAmount, settings.VATRate)
	if !tax.IsZero() {
		body = append(body, twoColumns("IVA ("+settings.VATRate.String()+"%):", money(tax)))
	}
	total := twoColumns("TOTAL:", money(sale.TotalAmount))
	body = append(body, total)
	if sale.PaymentMethod != "" && sale.PaymentMethod != domain.PaymentPending {
		body = append(body, twoColumns("Pago:", paymentLabel(sale.PaymentMethod)))
	}
	if sale.RefundedAmount.IsPositive() {
		body = append(body, twoColumns("Devuelto:", "-"+money(sale.RefundedAmount)))
	}

	footer := []string{""}
	if settings.TicketFooter != "" {
		footer = append(footer, center(settings.TicketFooter))
	}
	footer = append(footer, center("Gracias por su preferencia!"))

	lines := make([]string, 0, len(header)+len(body)+len(footer))
	lines = append(lines, header...)
	lines = append(lines, body...)
	lines = append(lines, footer...)

	return domain.ReceiptResponse{
		SaleID: sale.ID,
		Lines:  lines,
		Text:   strings.Join(lines, "\n"),
		ESCPOS: base64.StdEncoding.EncodeToString(EncodeESCPOS(header, body, footer, total)),
	}
}

func paymentLabel(method string) string {
	switch method {
	case domain.PaymentCash:
		return "Efectivo"
	case domain.PaymentCard:
		return "Tarjeta"
	case domain.PaymentTransfer:
		return "Transferencia"
	case domain.PaymentPoints:
		return "Puntos"
	default:
		return method
	}
}

func money(value decimal.Decimal) string {
	return "$" + value.StringFixed(2)
}

func center(text string) string {
	n := utf8.RuneCountInString(text)
	if n >= Width {
		return text
	}
	return strings.Repeat(" ", (Width-n)/2) + text
}

// twoColumns right-aligns value, truncating label when both do not fit.
func twoColumns(label string, value string) string {
	room := Width - utf8.RuneCountInString(value) - 1
	if room < 1 {
		return label + " " + value
	}
	runes := []rune(label)
	if len(runes) > room {
		runes = runes[:room]
	}
	return string(runes) + strings.Repeat(" ", Width-len(runes)-utf8.RuneCountInString(value)) + value
}

var (
	escInit       = []byte{0x1b, 0x40}
	escCodePage   = []byte{0x1b, 0x74, 19} // PC858
	escAlignLeft  = []byte{0x1b, 0x61, 0x00}
	escAlignMid   = []byte{0x1b, 0x61, 0x01}
	escBoldOn     = []byte{0x1b, 0x45, 0x01}
	escBoldOff    = []byte{0x1b, 0x45, 0x00}
	escFeed       = []byte{0x1b, 0x64, 0x03}
	escPartialCut = []byte{0x1d, 0x56, 0x41, 0x10}
)

// EncodeESCPOS renders receipt sections as printer commands. The line equal
// to bold is printed emphasised.
func EncodeESCPOS(header []string, body []string, footer []string, bold string) []byte {
	encoder := encoding.ReplaceUnsupported(charmap.CodePage858.NewEncoder())
	out := make([]byte, 0, 1024)
	out = append(out, escInit...)
	out = append(out, escCodePage...)

	write := func(line string) {
		encoded, err := encoder.String(line)
		if err != nil {
			encoded = line
		}
		out = append(out, encoded...)
		out = append(out, '\n')
	}

	out = append(out, escAlignMid...)
	out = append(out, escBoldOn...)
	for i, line := range header {
		write(strings.TrimSpace(line))
		if i == 0 {
			out = append(out, escBoldOff...)
		}
	}
	out = append(out, escAlignLeft...)
	for _, line := range body {
		if line == bold {
			out = append(out, escBoldOn...)
			write(line)
			out = append(out, escBoldOff...)
			continue
		}
		write(line)
	}
	out = append(out, escAlignMid...)
	for _, line := range footer {
		write(strings.TrimSpace(line))
	}
	out = append(out, escFeed...)
	out = append(out, escPartialCut...)
	return out
}
