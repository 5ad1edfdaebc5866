package protocol

// Message type constants.
const (
	// Device -> Core (published on the inbound topic)
	TypeJobTransition    = "job.transition"
	TypeOperatorPresence = "operator.presence"

	// Core -> Device (published on the reply topic)
	TypeJobTransitionResult = "job.transition_result"

	// Core -> Accounting (published from the outbox on the delivered topic)
	TypeJobDelivered = "job.delivered"
)

// Roles for Address.Role.
const (
	RoleDevice     = "device"
	RoleCore       = "core"
	RoleAccounting = "accounting"
)

// Protocol version.
const Version = 1
