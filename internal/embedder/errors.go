package embedder

import (
	"context"
	"errors"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// modelError tags an embedding failure as ModelUnavailable, keeping caller
// cancellation distinguishable.
func modelError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return apperr.New(apperr.KindCanceled, op, err)
	}
	return apperr.New(apperr.KindModelUnavailable, op, err)
}
