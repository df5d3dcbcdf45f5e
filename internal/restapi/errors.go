package restapi

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtiwari1/siteopt/internal/archive"
	"github.com/mtiwari1/siteopt/internal/ingest"
)

// httpStatusFor maps a failed optimization to a status code and a client-safe message.
// A snapshot that is too large is still a fetch failure. Unclassified failures get a
// generic message; the cause is only logged.
func httpStatusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ingest.ErrSourceFetchFailed):
		return http.StatusBadGateway, "failed to fetch source repository"
	case errors.Is(err, ingest.ErrPayloadTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "payload too large"
	case errors.Is(err, ingest.ErrInvalidSourceFormat), errors.Is(err, ingest.ErrEmptyPayload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, archive.ErrExtractionFailed):
		return http.StatusUnprocessableEntity, err.Error()
	}
	return http.StatusInternalServerError, "optimization failed"
}

// grpcToHTTPStatus maps gRPC status codes to HTTP status codes.
func grpcToHTTPStatus(err error) int {
	st, ok := status.FromError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch st.Code() {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
