package swap

import (
	"context"
	"fmt"
)

// SecretRevealer submits the hashlock secret once both escrows exist
type SecretRevealer struct {
	api SecretAPI
}

func NewSecretRevealer(api SecretAPI) *SecretRevealer {
	return &SecretRevealer{api: api}
}

func (r *SecretRevealer) Reveal(ctx context.Context, orderHash, secret string) error {
	if !ValidOrderHash(orderHash) {
		return ErrInvalidOrderHash
	}
	if !hash32Pattern.MatchString(secret) {
		return ErrInvalidSecret
	}
	if err := r.api.SubmitSecret(ctx, orderHash, secret); err != nil {
		return fmt.Errorf("%w: %w", ErrSecretFailed, err)
	}
	return nil
}
