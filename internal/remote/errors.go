package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/xavim/fieldentry/internal/models"
)

// apiError is the JSON error body returned by the server.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classifyStatus maps an HTTP response to a typed error. Classification
// happens here once; callers match with errors.Is and never inspect
// status codes or message text.
func classifyStatus(status int, body apiError) error {
	switch {
	case status == http.StatusUnauthorized:
		return models.ErrBadCredentials
	case status == http.StatusForbidden && body.Error == "account_disabled":
		return models.ErrAccountDisabled
	case status == http.StatusForbidden:
		return models.ErrBadCredentials
	case status == http.StatusTooManyRequests:
		return models.ErrServer
	case status == http.StatusNotFound:
		return models.ErrNotFound
	case status >= 500:
		return models.ErrServer
	case status >= 400:
		return models.ErrBadRequest
	}
	return nil
}

// classifyTransport maps transport-level failures: DNS and connectivity
// problems are network errors; timeouts and anything unrecognized count
// as server-side.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ErrNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return models.ErrNetwork
	}
	// An abandoned in-flight call leaves no partial state behind, so a
	// cancellation is reported like any other connectivity loss.
	if errors.Is(err, context.Canceled) {
		return models.ErrNetwork
	}

	// Timeouts and any failure not recognized above count as server-side.
	return models.ErrServer
}
