package enum

// ── Group A: Roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "admin"
	UserRoleKitchen = "kitchen"
)

// ── Group B: Actors and entry points of the order lifecycle ──

// The customer actor is the unauthenticated student who places and pays for an order.
const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
	ActorKitchen  = "kitchen"
)

const (
	EntrySubmitPayment = "submit_payment"
	EntryVerifyPayment = "verify_payment"
	EntrySetStatus     = "set_status"
)

const (
	VerifyActionApprove = "approve"
	VerifyActionReject  = "reject"
)

// ── Group C: Realtime ──

const (
	EventOrderVerified = "order.verified"
	EventOrderUpdated  = "order.updated"
)

const (
	ChannelKitchen     = "kitchen"
	ChannelAdmin       = "admin"
	ChannelOrderPrefix = "order:"
)

// ── Group D: Defaults ──

const (
	DefaultRejectionReason = "Payment not verified"
	DefaultUpiID           = "canteen@oksbi"
	DefaultCanteenName     = "College Canteen"
)
