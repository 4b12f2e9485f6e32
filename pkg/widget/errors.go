package widget

import "github.com/pkg/errors"

var (
	// ErrSubmitInFlight rejects a submission while another one is running.
	ErrSubmitInFlight = errors.New("widget: a message is already being sent")
	// ErrNoURL is returned by Submit when no chat URL is configured.
	ErrNoURL = errors.New("widget: no chat url configured")
)
