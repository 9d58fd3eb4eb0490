package mongodb

import "errors"

// Error kinds returned by the adapter. Callers match them with errors.Is; the
// driver error that caused a failure stays reachable through the same chain.
var (
	ErrConfiguration      = errors.New("advtxt-db-mongo: invalid configuration")
	ErrConnection         = errors.New("advtxt-db-mongo: connection error")
	ErrUpdate             = errors.New("advtxt-db-mongo: update failed")
	ErrLookup             = errors.New("advtxt-db-mongo: lookup failed")
	ErrInsert             = errors.New("advtxt-db-mongo: insert failed")
	ErrInvalidItem        = errors.New("advtxt-db-mongo: item is not a record")
	ErrMultiInsert        = errors.New("advtxt-db-mongo: insert did not report exactly one record")
	ErrNotInitialized     = errors.New("advtxt-db-mongo: adapter not initialized")
	ErrAlreadyInitialized = errors.New("advtxt-db-mongo: adapter already initialized")
	ErrClosed             = errors.New("advtxt-db-mongo: adapter is closed")
)

const (
	msgWrongAdapter  = "Wrong adapter or no adapter specified."
	msgCannotConnect = "Couldn't connect to DB!"
	msgNoDatabase    = "Connected, but failed to get a DB."
)
