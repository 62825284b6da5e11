package model

import "errors"

var (
	// ErrNotFound means the order does not exist or is not in the state the operation requires
	ErrNotFound = errors.New("order not found")

	ErrExpired = errors.New("order expired")

	// ErrUnsupportedSaleKind is returned for anything other than fixed-price orders
	ErrUnsupportedSaleKind = errors.New("unsupported sale kind")

	// ErrPreconditionFailed covers failed on-chain ownership, approval or allowance checks
	ErrPreconditionFailed = errors.New("precondition failed")

	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrExternalUnavailable is the only retryable class: the node failed or timed out
	ErrExternalUnavailable = errors.New("external service unavailable")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCorruptOrder means a stored payload no longer decodes
	ErrCorruptOrder = errors.New("stored order is corrupt")
)
