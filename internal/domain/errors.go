package domain

import "errors"

// ErrInvalidSignature marks a webhook request whose Slack signature or
// timestamp did not check out.
var ErrInvalidSignature = errors.New("invalid request signature")
