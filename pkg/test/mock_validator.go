package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/models"
)

// MockValidator is a mock implementation of auth.Validator
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, c models.Credentials) auth.Result {
	args := m.Called(c)
	return args.Get(0).(auth.Result)
}

// Accept returns a successful validation result
func Accept() auth.Result {
	return auth.Result{Success: true}
}

// Reject returns a failed validation result of the given kind
func Reject(kind auth.ErrorKind) auth.Result {
	err := &auth.Error{Kind: kind}
	return auth.Result{Success: false, ErrorMessage: err.Message(), Err: err}
}
