package audithook

// Action constants for audit events.
const (
	// Issuance actions
	ActionAssetIssued     = "asset.issued"
	ActionVoucherRejected = "voucher.rejected"
	ActionPayoutFailed    = "payout.failed"

	// Subscription actions
	ActionSubscriptionRenewed  = "subscription.renewed"
	ActionSubscriptionCanceled = "subscription.canceled"
	ActionAssetDestroyed       = "asset.destroyed"

	// Admin actions
	ActionSystemPaused   = "system.paused"
	ActionSystemUnpaused = "system.unpaused"
)

// Resource constants for audit events.
const (
	ResourceAsset        = "asset"
	ResourceVoucher      = "voucher"
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
	ResourceSystem       = "system"
)

// Category constants for audit events.
const (
	CategoryIssuance     = "issuance"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryAccess       = "access"
	CategoryAdmin        = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
