package ledger

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
)

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// responseTime reads the Date header of a ledger response.
func responseTime(r *stripe.APIResponse) time.Time {
	if r == nil {
		return time.Time{}
	}
	t, err := http.ParseTime(r.Header.Get("Date"))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func paymentMethodID(pm *stripe.PaymentMethod) string {
	if pm == nil {
		return ""
	}
	return pm.ID
}

func productFromStripe(p *stripe.Product) *Product {
	if p == nil || p.ID == "" {
		return nil
	}
	return &Product{ID: p.ID, Name: p.Name}
}

func customerFromStripe(c *stripe.Customer) *Customer {
	if c == nil {
		return nil
	}
	out := &Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Metadata: c.Metadata,
	}
	if c.InvoiceSettings != nil {
		out.DefaultPaymentMethodID = paymentMethodID(c.InvoiceSettings.DefaultPaymentMethod)
	}
	return out
}

func priceFromStripe(p *stripe.Price) *Price {
	if p == nil {
		return nil
	}
	out := &Price{
		ID:         p.ID,
		Nickname:   p.Nickname,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Active:     p.Active,
		Product:    productFromStripe(p.Product),
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

func planFromStripe(p *stripe.Plan) *Plan {
	if p == nil {
		return nil
	}
	return &Plan{
		ID:       p.ID,
		Nickname: p.Nickname,
		Amount:   p.Amount,
		Currency: string(p.Currency),
		Interval: string(p.Interval),
		Active:   p.Active,
		Product:  productFromStripe(p.Product),
	}
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	if pi == nil || pi.ID == "" {
		return nil
	}
	out := &PaymentIntent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		CustomerID:   customerID(pi.Customer),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		out.FailureMessage = pi.LastPaymentError.Msg
	}
	return out
}

func setupIntentFromStripe(si *stripe.SetupIntent) *SetupIntent {
	if si == nil || si.ID == "" {
		return nil
	}
	return &SetupIntent{
		ID:              si.ID,
		Status:          string(si.Status),
		ClientSecret:    si.ClientSecret,
		CustomerID:      customerID(si.Customer),
		PaymentMethodID: paymentMethodID(si.PaymentMethod),
		Metadata:        si.Metadata,
	}
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := &Subscription{
		ID:                     s.ID,
		CustomerID:             customerID(s.Customer),
		Status:                 string(s.Status),
		DefaultPaymentMethodID: paymentMethodID(s.DefaultPaymentMethod),
		PendingSetupIntent:     setupIntentFromStripe(s.PendingSetupIntent),
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd,
		CurrentPeriodEnd:       unixTime(s.CurrentPeriodEnd),
		CanceledAt:             unixTime(s.CanceledAt),
		Metadata:               s.Metadata,
		ObservedAt:             responseTime(s.LastResponse),
	}
	if s.Created > 0 {
		out.Created = time.Unix(s.Created, 0).UTC()
	}
	if s.LatestInvoice != nil {
		out.LatestInvoiceID = s.LatestInvoice.ID
		out.PaymentIntent = paymentIntentFromStripe(s.LatestInvoice.PaymentIntent)
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			out.Items = append(out.Items, SubscriptionItem{ID: item.ID, Price: priceFromStripe(item.Price)})
		}
	}
	return out
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod) *PaymentMethod {
	if pm == nil {
		return nil
	}
	out := &PaymentMethod{
		ID:         pm.ID,
		Type:       string(pm.Type),
		CustomerID: customerID(pm.Customer),
	}
	if pm.Card != nil {
		out.CardBrand = string(pm.Card.Brand)
		out.CardLast4 = pm.Card.Last4
	}
	return out
}

func checkoutSessionFromStripe(cs *stripe.CheckoutSession) *CheckoutSession {
	if cs == nil {
		return nil
	}
	out := &CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		Mode:          string(cs.Mode),
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		CustomerID:    customerID(cs.Customer),
		SuccessURL:    cs.SuccessURL,
		CancelURL:     cs.CancelURL,
		Metadata:      cs.Metadata,
	}
	if cs.SetupIntent != nil {
		out.SetupIntentID = cs.SetupIntent.ID
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	return out
}

// The *FromJSON helpers decode the data.object of a webhook event. Nested
// references may be either ids or expanded objects.

func SubscriptionFromJSON(raw []byte) (*Subscription, error) {
	var s stripe.Subscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "malformed subscription object", err)
	}
	if s.ID == "" {
		return nil, apperr.Validation("subscription object has no id")
	}
	return subscriptionFromStripe(&s), nil
}

func PaymentIntentFromJSON(raw []byte) (*PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "malformed payment intent object", err)
	}
	if pi.ID == "" {
		return nil, apperr.Validation("payment intent object has no id")
	}
	return paymentIntentFromStripe(&pi), nil
}

func CheckoutSessionFromJSON(raw []byte) (*CheckoutSession, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "malformed checkout session object", err)
	}
	if cs.ID == "" {
		return nil, apperr.Validation("checkout session object has no id")
	}
	return checkoutSessionFromStripe(&cs), nil
}
