package idp

import (
	"errors"
	"fmt"
)

// ErrExchangeFailed is wrapped by every error ExchangeCode returns.
var ErrExchangeFailed = errors.New("code exchange failed")

var (
	ErrMissingIDToken        = fmt.Errorf("%w: token response has no id_token", ErrExchangeFailed)
	ErrInvalidIDToken        = fmt.Errorf("%w: invalid id_token", ErrExchangeFailed)
	ErrNonceMissing          = fmt.Errorf("%w: id_token nonce missing", ErrExchangeFailed)
	ErrNonceMismatch         = fmt.Errorf("%w: id_token nonce mismatch", ErrExchangeFailed)
	ErrUnexpectedNonce       = fmt.Errorf("%w: id_token carries an unexpected nonce", ErrExchangeFailed)
	ErrProviderNotConfigured = errors.New("provider not configured")
)

func exchangeError(step string, err error) error {
	if errors.Is(err, ErrExchangeFailed) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrExchangeFailed, step, err)
}
