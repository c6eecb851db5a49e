package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/koombo/koombo/internal/models"
)

// The outbound-message placeholder vocabulary is closed: these ten tokens
// and nothing else. Substitution is a single left-to-right pass, so a
// substituted value containing something brace-shaped can never be
// re-expanded, and a token for a missing optional field becomes the empty
// string — never the literal "{notes}" leaking into a customer message.
var templateTokens = map[string]struct{}{
	"restaurant_name":  {},
	"order_id":         {},
	"customer_name":    {},
	"customer_phone":   {},
	"customer_email":   {},
	"delivery_address": {},
	"order_items":      {},
	"total":            {},
	"payment_method":   {},
	"notes":            {},
}

// DefaultTemplate is used when a tenant has not configured its own.
const DefaultTemplate = `Hola {customer_name}! 🍽️
Tu pedido en {restaurant_name} ha sido confirmado.

Pedido #{order_id}
{order_items}
Total: {total}
Pago: {payment_method}
Entrega: {delivery_address}
{notes}`

// Render substitutes the closed token set into tmpl in one pass.
// Brace sequences that are not a known token pass through untouched.
func Render(tmpl string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		open += i
		b.WriteString(tmpl[i:open])

		closing := strings.IndexByte(tmpl[open:], '}')
		if closing < 0 {
			b.WriteString(tmpl[open:])
			break
		}
		closing += open

		token := tmpl[open+1 : closing]
		if _, known := templateTokens[token]; known {
			b.WriteString(vars[token])
		} else {
			b.WriteString(tmpl[open : closing+1])
		}
		i = closing + 1
	}

	return b.String()
}

// Vars builds the substitution map for an order at a tenant. Optional
// fields that the order lacks map to "".
func Vars(t *models.Tenant, o *models.Order) map[string]string {
	var items strings.Builder
	for i, it := range o.Items {
		if i > 0 {
			items.WriteByte('\n')
		}
		fmt.Fprintf(&items, "%dx %s (%s)", it.Quantity, it.Name, it.UnitPrice.StringFixed(2))
	}

	name := ""
	if t != nil {
		name = t.Name
	}

	return map[string]string{
		"restaurant_name":  name,
		"order_id":         o.ID.String(),
		"customer_name":    o.CustomerName,
		"customer_phone":   o.CustomerPhone,
		"customer_email":   o.CustomerEmail,
		"delivery_address": o.DeliveryAddress,
		"order_items":      items.String(),
		"total":            o.Total.StringFixed(2),
		"payment_method":   o.PaymentMethod,
		"notes":            o.Notes,
	}
}

// OutboundMessage is a rendered customer notification: the text plus the
// deep link that opens it in the customer's messaging client. No delivery
// receipt exists — the staff member taps, the messaging app takes over.
type OutboundMessage struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// RenderOutbound produces the WhatsApp message for an order, using the
// tenant's template (falling back to DefaultTemplate) and the tenant's
// regional phone prefix (falling back to defaultPrefix).
func RenderOutbound(t *models.Tenant, o *models.Order, defaultPrefix string) OutboundMessage {
	tmpl := DefaultTemplate
	prefix := defaultPrefix
	if t != nil {
		if t.WhatsAppTemplate != "" {
			tmpl = t.WhatsAppTemplate
		}
		if t.WhatsAppPrefix != "" {
			prefix = t.WhatsAppPrefix
		}
	}

	text := Render(tmpl, Vars(t, o))
	phone := digitsOnly(prefix) + digitsOnly(o.CustomerPhone)

	return OutboundMessage{
		Text: text,
		Link: "https://wa.me/" + phone + "?text=" + url.QueryEscape(text),
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
