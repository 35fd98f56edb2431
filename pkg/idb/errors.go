package idb

import (
	"errors"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrNotOpen is returned by Table when Open was never called.
	ErrNotOpen = errors.New("idb: please open the database")
	// ErrClosed is returned by operations on a connection that was closed.
	ErrClosed = errors.New("idb: database connection is closed")
	// ErrNotFound is returned when a named collection or index does not exist.
	ErrNotFound = errors.New("idb: not found")
	// ErrConstraint is returned when a write would duplicate a primary key on
	// Add or an entry of a unique index.
	ErrConstraint = errors.New("idb: constraint violation")
	// ErrData is returned for invalid keys and records from which no key can
	// be derived.
	ErrData = errors.New("idb: data error")
	// ErrVersion is returned by Open when the stored version is newer than
	// the requested one.
	ErrVersion = errors.New("idb: requested version is lower than the stored version")
	// ErrInvalidState is returned for calls made out of order, such as index
	// access on a schema editor that is not bound to a collection (never
	// created, or deleted in the same upgrade), or cursor use after Close.
	ErrInvalidState = errors.New("idb: invalid state")
	// ErrPending is returned by Request.Result before the request completes.
	ErrPending = errors.New("idb: request is still pending")
)

// engineErr maps engine errors onto package errors.
func engineErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
