package services

import "errors"

var (
	ErrNotAuthorized            = errors.New("caller is not authorized")
	ErrParticipantNotRegistered = errors.New("participant is not registered")
	ErrAlreadyRegistered        = errors.New("participant is already registered")
	ErrInvalidAccountID         = errors.New("invalid external account id")
	ErrInvalidAddress           = errors.New("invalid participant address")
	ErrAssetNotFound            = errors.New("asset not found")
	ErrAssetAlreadyExists       = errors.New("asset already listed")
	ErrAmountOutOfBounds        = errors.New("amount outside configured bounds")
	ErrRateLimited              = errors.New("request cooldown has not elapsed")
	ErrRequestExpired           = errors.New("request deadline has passed")
	ErrRequestAlreadyProcessed  = errors.New("request already reached a terminal state")
	ErrRequestNotFound          = errors.New("request not found")
	ErrInvalidTimeout           = errors.New("timeout outside allowed range")
	ErrInvalidBatchSize         = errors.New("cleanup batch exceeds maximum size")
	ErrPaused                   = errors.New("settlement operations are paused")
	ErrTokenAddressMismatch     = errors.New("registry instance does not match the authorized one")
)
