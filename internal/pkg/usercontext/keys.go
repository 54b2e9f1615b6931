package usercontext

// Shared Locals, cookie and header keys used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	// CookieCustomer holds the ledger customer id of the browser's customer.
	CookieCustomer = "customer"
	// HeaderUserID carries the internal user id asserted by the upstream
	// identity provider.
	HeaderUserID = "X-User-ID"
)
