package node

import "errors"

var (
	// ErrTargetUnavailable is returned when the target is not registered or not online.
	// No connection to the target is attempted in that case.
	ErrTargetUnavailable = errors.New("target client not available")

	// ErrDeliveryFailed wraps every dial or call failure towards a resolved target.
	ErrDeliveryFailed = errors.New("message delivery failed")

	// ErrRegistrationRejected is returned by Start when the registry refuses the identity.
	ErrRegistrationRejected = errors.New("registration rejected")
)
