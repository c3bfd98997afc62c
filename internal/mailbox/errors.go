package mailbox

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
)

// ErrUnsupported is returned by sources that lack a change history or push support.
var ErrUnsupported = errors.New("operation not supported by this mailbox")

// classify maps API failures onto the pipeline's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// Transport failures never reached the API.
		return common.Transient(fmt.Errorf("%s: %w", op, err))
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %w", op, common.ErrUnauthorized, err)
	case apiErr.Code == http.StatusForbidden && isRateLimitReason(apiErr):
		return common.Transient(fmt.Errorf("%s: %w: %w", op, common.ErrRateLimit, err))
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w", op, common.ErrUnauthorized, err)
	case apiErr.Code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", op, common.ErrNotFound, err)
	case apiErr.Code == http.StatusTooManyRequests:
		return common.Transient(fmt.Errorf("%s: %w: %w", op, common.ErrRateLimit, err))
	case apiErr.Code >= 500:
		return common.Transient(fmt.Errorf("%s: %w", op, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
