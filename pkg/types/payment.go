package types

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
)

type PaymentSessionStatus string

const (
	PaymentSessionStatusPending   PaymentSessionStatus = "pending"
	PaymentSessionStatusCompleted PaymentSessionStatus = "completed"
	PaymentSessionStatusFailed    PaymentSessionStatus = "failed"
)

// Checkout event types consumed from the payment processor.
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutSessionExpired               = "checkout.session.expired"
)
