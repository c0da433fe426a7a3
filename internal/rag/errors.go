package rag

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// indexError tags an index failure. Caller cancellation keeps its own kind
// so a superseded query is not reported as an outage.
func indexError(op string, err error) error {
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return apperr.New(apperr.KindCanceled, op, err)
	}
	return apperr.New(apperr.KindIndexUnavailable, op, err)
}
