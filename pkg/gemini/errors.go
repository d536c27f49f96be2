package gemini

import (
	"errors"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNoAPIKeys         = errors.New("no Gemini API keys configured")
	ErrVertexUnsupported = errors.New("vertex AI backend is not supported by the genai client")
	ErrEmptyRequest      = errors.New("request has no contents")
)

// ErrorKind is the outcome of classifying a failed attempt.
type ErrorKind int

const (
	OtherFailure ErrorKind = iota
	AuthFailure
)

func (k ErrorKind) String() string {
	switch k {
	case AuthFailure:
		return "auth"
	default:
		return "other"
	}
}

// Classify reports AuthFailure when err carries a 401 or 403 status.
func Classify(err error) ErrorKind {
	code, ok := StatusCode(err)
	if !ok {
		return OtherFailure
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return AuthFailure
	}
	return OtherFailure
}

type statusCoder interface {
	StatusCode() int
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// StatusCode extracts an HTTP-style status from err. It looks at the error's
// own status first and then at the response status wrapped inside it; gRPC
// Unauthenticated and PermissionDenied map to 401 and 403.
func StatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code != 0 {
		return gerr.Code, true
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		return sc.StatusCode(), true
	}
	var hc httpStatusCoder
	if errors.As(err, &hc) && hc.HTTPStatusCode() != 0 {
		return hc.HTTPStatusCode(), true
	}

	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if code := aerr.HTTPCode(); code > 0 {
			return code, true
		}
	}

	if s, ok := status.FromError(err); ok && s != nil {
		switch s.Code() {
		case codes.Unauthenticated:
			return http.StatusUnauthorized, true
		case codes.PermissionDenied:
			return http.StatusForbidden, true
		case codes.InvalidArgument:
			return http.StatusBadRequest, true
		case codes.ResourceExhausted:
			return http.StatusTooManyRequests, true
		case codes.Unavailable:
			return http.StatusServiceUnavailable, true
		case codes.Internal, codes.Unknown:
			return http.StatusInternalServerError, true
		}
	}
	return 0, false
}
