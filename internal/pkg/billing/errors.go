package billing

import "errors"

// Hard event errors. The webhook ingress surfaces these with a client error
// status so the provider's retry/alerting makes the upstream bug visible.
// A missing attribution means our checkout flow stopped stamping metadata.
var (
	ErrMissingAttribution = errors.New("subscription event missing user attribution metadata")
	ErrMissingPrice       = errors.New("subscription event missing price id")
	ErrBadPayload         = errors.New("event payload could not be decoded")
)

// IsHardEventError reports whether err belongs to the non-retryable hard
// class (attribution and decoding failures). Store errors are deliberately
// excluded: those are transient and must surface as retryable.
func IsHardEventError(err error) bool {
	return errors.Is(err, ErrMissingAttribution) ||
		errors.Is(err, ErrMissingPrice) ||
		errors.Is(err, ErrBadPayload)
}
