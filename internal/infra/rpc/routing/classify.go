package routing

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// Service error types that mean the request itself is at fault.
var nonRetryableCodes = map[string]bool{
	"ValidationException":         true,
	"ParamValidationError":        true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"ResourceNotFoundException":   true,
	"ExpiredTokenException":       true,
}

// Service error types for transient regional trouble.
var retryableCodes = map[string]bool{
	"ThrottlingException":            true,
	"TooManyRequestsException":       true,
	"ServiceQuotaExceededException":  true,
	"ServiceUnavailableException":    true,
	"InternalServerException":        true,
	"ModelNotReadyException":         true,
	"ModelTimeoutException":          true,
	"ModelStreamErrorException":      true,
	"ReadTimeoutError":               true,
	"ConnectTimeoutError":            true,
	"EndpointConnectionError":        true,
	"ServiceUnavailableError":        true,
	"RequestTimeout":                 true,
	"RequestTimeoutException":        true,
	"ProvisionedThroughputExceeded":  true,
	"LimitExceededException":         true,
	"InsufficientCapacityException":  true,
	"ModelCapacityExceededException": true,
}

// ClassifyError determines how the dispatcher reacts to a failed attempt.
// Errors that match nothing are treated as retryable.
func ClassifyError(err error) domain.FailureClass {
	if err == nil {
		return domain.FailureRetryable // Should not happen
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureRetryable
	}
	if errors.Is(err, context.Canceled) {
		return domain.FailureNonRetryable
	}

	var invokeErr *domain.InvokeError
	if errors.As(err, &invokeErr) {
		if invokeErr.Class != "" {
			return invokeErr.Class
		}
		if class, ok := classifyCode(invokeErr.Code); ok {
			return class
		}
		if class, ok := classifyStatus(invokeErr.StatusCode); ok {
			return class
		}
	}

	if class, ok := classifyGRPC(err); ok {
		return class
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FailureRetryable
	}

	return classifyMessage(err.Error())
}

func classifyCode(code string) (domain.FailureClass, bool) {
	switch {
	case code == "":
		return "", false
	case nonRetryableCodes[code]:
		return domain.FailureNonRetryable, true
	case retryableCodes[code]:
		return domain.FailureRetryable, true
	default:
		return "", false
	}
}

func classifyStatus(code int) (domain.FailureClass, bool) {
	switch {
	case code == 0:
		return "", false
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return domain.FailureRetryable, true
	case code >= 500:
		return domain.FailureRetryable, true
	case code >= 400:
		return domain.FailureNonRetryable, true
	default:
		return "", false
	}
}

func classifyGRPC(err error) (domain.FailureClass, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.Unknown || st.Code() == codes.OK {
		return "", false
	}

	for _, detail := range st.Details() {
		switch detail.(type) {
		case *errdetails.QuotaFailure, *errdetails.RetryInfo:
			return domain.FailureRetryable, true
		case *errdetails.BadRequest:
			return domain.FailureNonRetryable, true
		}
	}

	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded,
		codes.Aborted, codes.Internal:
		return domain.FailureRetryable, true
	default:
		return domain.FailureNonRetryable, true
	}
}

func classifyMessage(s string) domain.FailureClass {
	sLower := strings.ToLower(s)

	// Request issues
	if strings.Contains(sLower, "validationexception") ||
		strings.Contains(sLower, "paramvalidationerror") ||
		strings.Contains(sLower, "accessdeniedexception") ||
		strings.Contains(sLower, "unrecognizedclientexception") ||
		strings.Contains(sLower, "malformed") ||
		strings.Contains(sLower, "invalid request") ||
		strings.Contains(sLower, "unauthorized") ||
		strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "permission denied") {
		return domain.FailureNonRetryable
	}

	// Network, throttling, 5xx, etc
	return domain.FailureRetryable
}
