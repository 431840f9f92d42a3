package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/metrics"
	"github.com/unraidmate/console/pkg/models"
)

// DefaultValidateTimeout is the hard limit for one validation round trip
const DefaultValidateTimeout = 10 * time.Second

// Result is the outcome of a validation
type Result struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Err          *Error `json:"-"`
}

func failure(err *Error) Result {
	return Result{Success: false, ErrorMessage: err.Message(), Err: err}
}

// Validator checks a candidate server and key
type Validator interface {
	Validate(ctx context.Context, c models.Credentials) Result
}

// ClientFactory builds a standalone client for a candidate
type ClientFactory interface {
	ForCredentials(c models.Credentials) *graphql.Client
}

// RemoteValidator runs the health query against the candidate server using a
// throwaway client, never the shared one.
type RemoteValidator struct {
	clients ClientFactory
	timeout atomic.Int64
}

// NewRemoteValidator creates a validator. A zero timeout uses DefaultValidateTimeout.
func NewRemoteValidator(clients ClientFactory, timeout time.Duration) *RemoteValidator {
	v := &RemoteValidator{clients: clients}
	v.SetTimeout(timeout)
	return v
}

// SetTimeout changes the limit for validations started afterwards
func (v *RemoteValidator) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	v.timeout.Store(int64(timeout))
}

// Validate issues one health query. The request is cancelled when the
// timeout fires, and the timeout is reported as KindTimeout.
func (v *RemoteValidator) Validate(ctx context.Context, c models.Credentials) Result {
	c = c.Trimmed()
	if !c.Complete() {
		return record(failure(newValidationError("server address and API key are required")))
	}

	timeout := time.Duration(v.timeout.Load())
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := v.clients.ForCredentials(c)
	err := client.Ping(ctx)
	if err == nil {
		log.Printf("[auth] validated %s", c.ServerAddress)
		return record(Result{Success: true})
	}

	var classified *Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		classified = &Error{Kind: KindTimeout, Detail: fmt.Sprintf("no response within %s", timeout), Err: err}
	} else {
		classified = ClassifyError(err)
	}
	log.Printf("[auth] validation of %s failed (%s): %v", c.ServerAddress, classified.Kind, err)
	return record(failure(classified))
}

func record(r Result) Result {
	if r.Success {
		metrics.Validations.WithLabelValues("success", "").Inc()
	} else {
		metrics.Validations.WithLabelValues("failure", string(r.Err.Kind)).Inc()
	}
	return r
}
