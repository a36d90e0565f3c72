package exchange

import (
	"context"

	"kucoin-depth-viewer/models"
)

// TokenProvider obtains the credential required to open a feed session
type TokenProvider interface {
	// AcquireToken performs a single token request; it never retries.
	AcquireToken(ctx context.Context) (models.Token, error)
}
