package httpx

import (
	"context"
	"errors"
	"net"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/resilience"
)

// Classify maps transport failures onto retry/breaker behavior shared
// by every HTTP dependency client. Context expiry is the caller's
// deadline, not the dependency's fault: no retry, no breaker strike.
func Classify(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if RetryableStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// WrapTemporary tags retry-class failures with the temporary kind so
// the HTTP layer can answer 503 instead of a generic 500.
func WrapTemporary(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}

	class := Classify(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
