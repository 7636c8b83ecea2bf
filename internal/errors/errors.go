package errors

import "errors"

var (
	ErrMissingEventKey     = errors.New("rotation event is missing a required key")
	ErrInvalidStep         = errors.New("invalid rotation step")
	ErrRotationNotEnabled  = errors.New("secret is not enabled for rotation")
	ErrVersionNotFound     = errors.New("secret has no version for the client request token")
	ErrVersionNotPending   = errors.New("secret version is not set as AWSPENDING for rotation")
	ErrMalformedSecret     = errors.New("secret value is malformed")
	ErrUnauthorized        = errors.New("registry rejected the credentials")
	ErrStackNotFound       = errors.New("stack not found")
	ErrStackOutputNotFound = errors.New("stack output not found")
	ErrPolicyViolation     = errors.New("template violates stack policy")
)
