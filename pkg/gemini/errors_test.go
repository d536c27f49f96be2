package gemini

import (
	"errors"
	"fmt"
	"testing"

	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type codedError struct {
	code int
}

func (e codedError) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e codedError) StatusCode() int { return e.code }

func TestClassify_GoogleAPIError(t *testing.T) {
	assert.Equal(t, AuthFailure, Classify(&googleapi.Error{Code: 401}))
	assert.Equal(t, AuthFailure, Classify(&googleapi.Error{Code: 403}))
	assert.Equal(t, OtherFailure, Classify(&googleapi.Error{Code: 429}))
	assert.Equal(t, OtherFailure, Classify(&googleapi.Error{Code: 500}))
}

func TestClassify_WrappedError(t *testing.T) {
	err := fmt.Errorf("generate: %w", &googleapi.Error{Code: 403})

	assert.Equal(t, AuthFailure, Classify(err))
}

func TestClassify_StatusCoder(t *testing.T) {
	assert.Equal(t, AuthFailure, Classify(codedError{code: 401}))
	assert.Equal(t, OtherFailure, Classify(codedError{code: 400}))
}

func TestClassify_APIError(t *testing.T) {
	aerr, ok := apierror.FromError(&googleapi.Error{Code: 401, Message: "unauthorized"})
	require.True(t, ok)

	code, found := StatusCode(aerr)
	assert.True(t, found)
	assert.Equal(t, 401, code)
	assert.Equal(t, AuthFailure, Classify(aerr))
}

func TestClassify_GRPCStatus(t *testing.T) {
	assert.Equal(t, AuthFailure, Classify(status.Error(codes.Unauthenticated, "bad key")))
	assert.Equal(t, AuthFailure, Classify(status.Error(codes.PermissionDenied, "forbidden")))
	assert.Equal(t, OtherFailure, Classify(status.Error(codes.ResourceExhausted, "quota")))
	assert.Equal(t, OtherFailure, Classify(status.Error(codes.InvalidArgument, "bad request")))
}

func TestClassify_PlainErrors(t *testing.T) {
	assert.Equal(t, OtherFailure, Classify(nil))
	assert.Equal(t, OtherFailure, Classify(errors.New("connection reset")))
	assert.Equal(t, OtherFailure, Classify(errors.New("401 in the message only")))
}

func TestStatusCode_NoStatus(t *testing.T) {
	_, ok := StatusCode(errors.New("boom"))
	assert.False(t, ok)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "auth", AuthFailure.String())
	assert.Equal(t, "other", OtherFailure.String())
}
