package compliance

import "errors"

// RefusalError is returned when the backend answers with text only and no
// image segment: a content-policy rejection rather than a transient fault.
// The backend's own words are surfaced verbatim so the user understands
// why the photo was refused.
type RefusalError struct {
	Message string
}

func (e *RefusalError) Error() string {
	return e.Message
}

// ErrNoImage reports a response that carried neither an image segment nor
// any explanatory text.
var ErrNoImage = errors.New("no image segment in backend response")

// UserMessage maps a Transform error to the message shown to the user.
// Refusals pass through verbatim; everything else gets the generic
// remediation hint, since retrying with a clearer photo is the only
// recovery the user has.
func UserMessage(err error) string {
	var refusal *RefusalError
	if errors.As(err, &refusal) {
		return refusal.Message
	}
	return "Transformation failed. Please try a photo with clearer lighting and a visible head for the AI to analyze."
}
