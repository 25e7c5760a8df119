package events

// Event names published across the domain, named here once so producers
// and the handlers that Registry.Register claims them for never drift.
const (
	AdvertisementDepositCreated   = "AdvertisementDepositCreated"
	AdvertisementDepositConfirmed = "AdvertisementDepositConfirmed"
	PaymentRequestCreated         = "PaymentRequestCreated"
	BuyPaymentConfirmed           = "BuyPaymentConfirmed"
	BuyDisputeOpened              = "BuyDisputeOpened"
)

// AllEventNames is the candidate list Registry.Register scans against
// each handler's CanHandle, so registering a handler at boot never
// requires the caller to know which names it claims.
var AllEventNames = []string{
	AdvertisementDepositCreated,
	AdvertisementDepositConfirmed,
	PaymentRequestCreated,
	BuyPaymentConfirmed,
	BuyDisputeOpened,
}
