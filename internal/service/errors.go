package service

import (
	"errors"
	"fmt"

	"github.com/emrgen/vault/internal/provider"
)

// Kind classifies store errors so callers can decide remediation: Conflict is
// a legitimate, retryable outcome of a lost race; NotFound and Validation are
// caller mistakes; Transaction is a storage-layer failure.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindValidation  Kind = "validation"
	KindTransaction Kind = "transaction"
	KindProvider    Kind = "provider"
)

// Error is a typed store error carrying enough context (module, path, id,
// provider name) for the caller to act on.
type Error struct {
	Kind     Kind
	Module   string
	Path     string
	NodeID   string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s", e.Kind)
	if e.Module != "" {
		msg += " module=" + e.Module
	}
	if e.Path != "" {
		msg += " path=" + e.Path
	}
	if e.NodeID != "" {
		msg += " node=" + e.NodeID
	}
	if e.Provider != "" {
		msg += " provider=" + e.Provider
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

func IsProvider(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindProvider
}

func notFoundErr(module, path, nodeID string, err error) *Error {
	return &Error{Kind: KindNotFound, Module: module, Path: path, NodeID: nodeID, Err: err}
}

func conflictErr(module, path string, err error) *Error {
	return &Error{Kind: KindConflict, Module: module, Path: path, Err: err}
}

func validationErr(err error) *Error {
	return &Error{Kind: KindValidation, Err: err}
}

// wrapErr passes typed errors through untouched, attributes provider failures
// to their provider, and classifies everything else as a transaction failure.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		return &Error{Kind: KindProvider, Provider: pe.Provider, Err: err}
	}

	return &Error{Kind: KindTransaction, Err: err}
}
