package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrAuthFlow matches every *AuthFlowError. The caller should present
	// sign-in again.
	ErrAuthFlow = errors.New("auth: sign-in failed")

	// ErrReauthRequired means the session holds no usable credential and
	// silent refresh is not possible. It is an expected condition.
	ErrReauthRequired = errors.New("auth: re-authentication required")
)

// Reasons carried by AuthFlowError.
const (
	ReasonMissingState  = "missing_state"
	ReasonUnknownState  = "unknown_state"
	ReasonExpiredState  = "expired_state"
	ReasonForeignState  = "state_session_mismatch"
	ReasonMissingCode   = "missing_code"
	ReasonProviderError = "provider_error"
	ReasonRedeemFailed  = "redeem_failed"
)

// AuthFlowError reports a callback that could not complete sign-in.
type AuthFlowError struct {
	Reason       string
	ProviderCode string
	Description  string
	Err          error
}

func (e *AuthFlowError) Error() string {
	msg := "auth: sign-in failed: " + e.Reason

	if e.ProviderCode != "" {
		msg += fmt.Sprintf(": %s", e.ProviderCode)
	}

	if e.Description != "" {
		msg += fmt.Sprintf(" (%s)", e.Description)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *AuthFlowError) Is(target error) bool {
	return target == ErrAuthFlow
}

func (e *AuthFlowError) Unwrap() error {
	return e.Err
}
