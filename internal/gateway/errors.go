package gateway

import (
	"errors"
	"fmt"

	"gitreal/internal/domain"
)

// Kind classifies gateway failures. Retrying is always the caller's choice.
type Kind string

const (
	// KindNetwork means the request never reached the service or timed out.
	KindNetwork Kind = "network"
	// KindService means the service responded with a failure status.
	KindService Kind = "service"
	// KindDecode means the response body had an unexpected shape.
	KindDecode Kind = "decode"
)

// Error is the uniform failure type for every endpoint.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s error: %s", e.Kind, e.Message)
}

// ErrorCode maps a failure to the session error taxonomy for UI reporting.
func ErrorCode(err error) domain.ErrorCode {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		switch gwErr.Kind {
		case KindService:
			return domain.ErrorCodeService
		case KindDecode:
			return domain.ErrorCodeDecode
		}
	}
	return domain.ErrorCodeNetwork
}
