// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ManuelReschke/FoxPay/internal/pkg/apperr"
	"github.com/ManuelReschke/FoxPay/internal/pkg/ledger"
)

// Fake is a deterministic in-memory ledger. Ids are sequential per prefix
// (cus_1, sub_1, cs_1, ...). Failures can be injected per operation.
// Stored strings are cloned so callers may hand in request-scoped memory.
type Fake struct {
	mu sync.Mutex

	Now func() time.Time

	seq            map[string]int
	customers      map[string]*ledger.Customer
	subscriptions  map[string]*ledger.Subscription
	prices         map[string]*ledger.Price
	plans          map[string]*ledger.Plan
	paymentMethods map[string]*ledger.PaymentMethod
	setupIntents   map[string]*ledger.SetupIntent
	sessions       map[string]*ledger.CheckoutSession
	sessionSetup   map[string]map[string]string

	calls    map[string]int
	failures map[string][]error
	sticky   map[string]error
}

var _ ledger.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Now:            time.Now,
		seq:            map[string]int{},
		customers:      map[string]*ledger.Customer{},
		subscriptions:  map[string]*ledger.Subscription{},
		prices:         map[string]*ledger.Price{},
		plans:          map[string]*ledger.Plan{},
		paymentMethods: map[string]*ledger.PaymentMethod{},
		setupIntents:   map[string]*ledger.SetupIntent{},
		sessions:       map[string]*ledger.CheckoutSession{},
		sessionSetup:   map[string]map[string]string{},
		calls:          map[string]int{},
		failures:       map[string][]error{},
		sticky:         map[string]error{},
	}
}

// AddPrice seeds an active recurring price. A zero amount behaves like a
// free or trial price: subscriptions get a pending setup intent instead of
// an invoice payment intent.
func (f *Fake) AddPrice(id string, unitAmount int64) *ledger.Price {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &ledger.Price{
		ID:         id,
		UnitAmount: unitAmount,
		Currency:   "usd",
		Interval:   "month",
		Active:     true,
		Product:    &ledger.Product{ID: "prod_" + id, Name: id},
	}
	f.prices[id] = p
	f.plans[id] = &ledger.Plan{
		ID:       id,
		Amount:   unitAmount,
		Currency: "usd",
		Interval: "month",
		Active:   true,
		Product:  p.Product,
	}
	return p
}

// AddPaymentMethod seeds a card payment method, optionally already attached.
func (f *Fake) AddPaymentMethod(id, customerID string) *ledger.PaymentMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	pm := &ledger.PaymentMethod{ID: id, Type: "card", CustomerID: customerID, CardBrand: "visa", CardLast4: "4242"}
	f.paymentMethods[id] = pm
	return pm
}

// FailNext makes the next call of op return err. Calls queue up.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// FailAlways makes every call of op return err until Reset is called.
func (f *Fake) FailAlways(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sticky[op] = err
}

// Reset clears injected failures and call counters.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = map[string][]error{}
	f.sticky = map[string]error{}
	f.calls = map[string]int{}
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of invocations across all operations.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Subscription returns a copy of the stored subscription.
func (f *Fake) Subscription(id string) (ledger.Subscription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return ledger.Subscription{}, false
	}
	return *s, true
}

// Customer returns a copy of the stored customer.
func (f *Fake) Customer(id string) (ledger.Customer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return ledger.Customer{}, false
	}
	return *c, true
}

// SetSubscriptionStatus changes a subscription as the processor would after
// a payment outcome.
func (f *Fake) SetSubscriptionStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscriptions[id]; ok {
		s.Status = status
	}
}

// CompleteSetupSession simulates the payer finishing a setup-mode checkout
// with paymentMethodID: the setup intent succeeds and carries the session's
// setup metadata.
func (f *Fake) CompleteSetupSession(sessionID, paymentMethodID string) (*ledger.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("checkout session", sessionID)
	}
	if cs.Mode != ledger.CheckoutModeSetup {
		return nil, apperr.Validation("session is not in setup mode")
	}
	if _, ok := f.paymentMethods[paymentMethodID]; !ok {
		paymentMethodID = strings.Clone(paymentMethodID)
		f.paymentMethods[paymentMethodID] = &ledger.PaymentMethod{ID: paymentMethodID, Type: "card", CardBrand: "visa", CardLast4: "4242"}
	}
	si := &ledger.SetupIntent{
		ID:              f.nextID("seti"),
		Status:          "succeeded",
		CustomerID:      cs.CustomerID,
		PaymentMethodID: paymentMethodID,
		Metadata:        copyMap(f.sessionSetup[sessionID]),
	}
	si.ClientSecret = si.ID + "_secret_fake"
	f.setupIntents[si.ID] = si
	cs.SetupIntentID = si.ID
	cs.Status = "complete"
	out := *si
	return &out, nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq[prefix]++
	return fmt.Sprintf("%s_%d", prefix, f.seq[prefix])
}

// begin records the call and returns an injected failure, if any. Callers
// hold f.mu.
func (f *Fake) begin(op string) error {
	f.calls[op]++
	if err := f.sticky[op]; err != nil {
		return err
	}
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) CreateCustomer(ctx context.Context, req ledger.CreateCustomerRequest) (*ledger.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpCreateCustomer); err != nil {
		return nil, err
	}
	if req.Email == "" {
		return nil, apperr.Validation("invalid or missing: Email")
	}
	c := &ledger.Customer{
		ID:       f.nextID("cus"),
		Email:    strings.Clone(req.Email),
		Name:     strings.Clone(req.Name),
		Metadata: copyMap(req.Metadata),
	}
	f.customers[c.ID] = c
	out := *c
	return &out, nil
}

func (f *Fake) GetCustomer(ctx context.Context, id string) (*ledger.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpGetCustomer); err != nil {
		return nil, err
	}
	c, ok := f.customers[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such customer: '%s'", id))
	}
	out := *c
	return &out, nil
}

func (f *Fake) ListCustomers(ctx context.Context, req ledger.ListCustomersRequest) ([]ledger.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpListCustomers); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = ledger.DefaultCustomerListLimit
	}
	ids := sortedKeys(f.customers)
	var out []ledger.Customer
	for _, id := range ids {
		c := f.customers[id]
		if req.Email != "" && c.Email != req.Email {
			continue
		}
		out = append(out, *c)
		if int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) SetCustomerDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*ledger.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpSetCustomerDefaultPM); err != nil {
		return nil, err
	}
	c, ok := f.customers[customerID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such customer: '%s'", customerID))
	}
	pm, ok := f.paymentMethods[paymentMethodID]
	if !ok || pm.CustomerID != customerID {
		return nil, apperr.Validation(fmt.Sprintf("The payment method %s must be attached to the customer.", paymentMethodID))
	}
	c.DefaultPaymentMethodID = pm.ID
	out := *c
	return &out, nil
}

func (f *Fake) CreateSubscription(ctx context.Context, req ledger.CreateSubscriptionRequest) (*ledger.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpCreateSubscription); err != nil {
		return nil, err
	}
	if _, ok := f.customers[req.CustomerID]; !ok {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: fmt.Sprintf("No such customer: '%s'", req.CustomerID), Code: "resource_missing"}
	}
	price, ok := f.prices[req.PriceID]
	if !ok {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Message: fmt.Sprintf("No such price: '%s'", req.PriceID), Code: "resource_missing"}
	}

	customerID := strings.Clone(req.CustomerID)
	now := f.Now().UTC().Truncate(time.Second)
	periodEnd := now.AddDate(0, 1, 0)
	s := &ledger.Subscription{
		ID:               f.nextID("sub"),
		CustomerID:       customerID,
		Items:            []ledger.SubscriptionItem{{ID: f.nextID("si"), Price: copyPrice(price)}},
		Created:          now,
		CurrentPeriodEnd: &periodEnd,
		LatestInvoiceID:  f.nextID("in"),
	}
	if price.UnitAmount == 0 {
		s.Status = ledger.StatusActive
		si := &ledger.SetupIntent{ID: f.nextID("seti"), Status: "requires_payment_method", CustomerID: customerID}
		si.ClientSecret = si.ID + "_secret_fake"
		f.setupIntents[si.ID] = si
		s.PendingSetupIntent = copySetupIntent(si)
	} else {
		s.Status = ledger.StatusIncomplete
		pi := &ledger.PaymentIntent{
			ID:         f.nextID("pi"),
			Status:     "requires_payment_method",
			CustomerID: customerID,
			Amount:     price.UnitAmount,
			Currency:   price.Currency,
		}
		pi.ClientSecret = pi.ID + "_secret_fake"
		s.PaymentIntent = pi
	}
	f.subscriptions[s.ID] = s
	return f.answer(s), nil
}

func (f *Fake) GetSubscription(ctx context.Context, id string) (*ledger.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpGetSubscription); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such subscription: '%s'", id))
	}
	return f.answer(s), nil
}

func (f *Fake) ListSubscriptions(ctx context.Context, req ledger.ListSubscriptionsRequest) ([]ledger.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpListSubscriptions); err != nil {
		return nil, err
	}
	var out []ledger.Subscription
	for _, id := range sortedKeys(f.subscriptions) {
		s := f.subscriptions[id]
		if s.CustomerID != req.CustomerID {
			continue
		}
		switch req.Status {
		case "", "all":
			// Stripe hides canceled subscriptions unless asked for them.
			if req.Status == "" && s.Status == ledger.StatusCanceled {
				continue
			}
		default:
			if s.Status != req.Status {
				continue
			}
		}
		out = append(out, *copySubscription(s))
	}
	return out, nil
}

func (f *Fake) SetSubscriptionDefaultPaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) (*ledger.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpSetSubscriptionDefaultPM); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such subscription: '%s'", subscriptionID))
	}
	pm, ok := f.paymentMethods[paymentMethodID]
	if !ok || pm.CustomerID != s.CustomerID {
		return nil, apperr.Validation(fmt.Sprintf("The payment method %s must be attached to the customer.", paymentMethodID))
	}
	s.DefaultPaymentMethodID = pm.ID
	return f.answer(s), nil
}

func (f *Fake) CancelSubscription(ctx context.Context, id string) (*ledger.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpCancelSubscription); err != nil {
		return nil, err
	}
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such subscription: '%s'", id))
	}
	if s.Status == ledger.StatusCanceled {
		return nil, apperr.Validation(fmt.Sprintf("A canceled subscription can only update its cancellation_details and metadata. (%s)", id))
	}
	now := f.Now().UTC().Truncate(time.Second)
	s.Status = ledger.StatusCanceled
	s.CanceledAt = &now
	return f.answer(s), nil
}

func (f *Fake) ListPrices(ctx context.Context) ([]ledger.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpListPrices); err != nil {
		return nil, err
	}
	var out []ledger.Price
	for _, id := range sortedKeys(f.prices) {
		out = append(out, *copyPrice(f.prices[id]))
	}
	return out, nil
}

func (f *Fake) ListPlans(ctx context.Context) ([]ledger.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpListPlans); err != nil {
		return nil, err
	}
	var out []ledger.Plan
	for _, id := range sortedKeys(f.plans) {
		out = append(out, *f.plans[id])
	}
	return out, nil
}

func (f *Fake) GetPaymentMethod(ctx context.Context, id string) (*ledger.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpGetPaymentMethod); err != nil {
		return nil, err
	}
	pm, ok := f.paymentMethods[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such PaymentMethod: '%s'", id))
	}
	out := *pm
	return &out, nil
}

func (f *Fake) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (*ledger.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpAttachPaymentMethod); err != nil {
		return nil, err
	}
	pm, ok := f.paymentMethods[paymentMethodID]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("No such PaymentMethod: '%s'", paymentMethodID))
	}
	if _, ok := f.customers[customerID]; !ok {
		return nil, apperr.Validation(fmt.Sprintf("No such customer: '%s'", customerID))
	}
	if pm.CustomerID != "" && pm.CustomerID != customerID {
		return nil, apperr.Validation("The payment method you provided has already been attached to a customer.")
	}
	pm.CustomerID = strings.Clone(customerID)
	out := *pm
	return &out, nil
}

func (f *Fake) GetSetupIntent(ctx context.Context, id string) (*ledger.SetupIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpGetSetupIntent); err != nil {
		return nil, err
	}
	si, ok := f.setupIntents[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such setupintent: '%s'", id))
	}
	return copySetupIntent(si), nil
}

func (f *Fake) CreateCheckoutSession(ctx context.Context, req ledger.CreateCheckoutSessionRequest) (*ledger.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpCreateCheckoutSession); err != nil {
		return nil, err
	}
	switch req.Mode {
	case ledger.CheckoutModeSetup:
		if _, ok := f.customers[req.CustomerID]; !ok {
			return nil, apperr.Validation(fmt.Sprintf("No such customer: '%s'", req.CustomerID))
		}
	case ledger.CheckoutModeSubscription:
		if _, ok := f.prices[req.PriceID]; !ok {
			return nil, apperr.Validation(fmt.Sprintf("No such price: '%s'", req.PriceID))
		}
	default:
		return nil, apperr.Validation("Invalid mode")
	}
	cs := &ledger.CheckoutSession{
		ID:         f.nextID("cs"),
		Mode:       req.Mode,
		Status:     "open",
		CustomerID: strings.Clone(req.CustomerID),
		SuccessURL: strings.Clone(req.SuccessURL),
		CancelURL:  strings.Clone(req.CancelURL),
		Metadata:   copyMap(req.Metadata),
	}
	cs.URL = "https://checkout.stripe.test/c/pay/" + cs.ID
	f.sessions[cs.ID] = cs
	f.sessionSetup[cs.ID] = copyMap(req.SetupMetadata)
	out := *cs
	return &out, nil
}

func (f *Fake) GetCheckoutSession(ctx context.Context, id string) (*ledger.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ledger.OpGetCheckoutSession); err != nil {
		return nil, err
	}
	cs, ok := f.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No such checkout.session: '%s'", id))
	}
	out := *cs
	return &out, nil
}

func (f *Fake) VerifyCredentials(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin(ledger.OpVerifyCredentials)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// answer copies s as the ledger returns it, stamped with the ledger clock.
func (f *Fake) answer(s *ledger.Subscription) *ledger.Subscription {
	out := copySubscription(s)
	out.ObservedAt = f.Now().UTC().Truncate(time.Second)
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.Clone(k)] = strings.Clone(v)
	}
	return out
}

func copyPrice(p *ledger.Price) *ledger.Price {
	out := *p
	return &out
}

func copySetupIntent(si *ledger.SetupIntent) *ledger.SetupIntent {
	out := *si
	out.Metadata = copyMap(si.Metadata)
	return &out
}

func copySubscription(s *ledger.Subscription) *ledger.Subscription {
	out := *s
	out.Items = append([]ledger.SubscriptionItem(nil), s.Items...)
	if s.PaymentIntent != nil {
		pi := *s.PaymentIntent
		out.PaymentIntent = &pi
	}
	if s.PendingSetupIntent != nil {
		out.PendingSetupIntent = copySetupIntent(s.PendingSetupIntent)
	}
	return &out
}
