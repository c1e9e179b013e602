package cdb

import "errors"

// Domain errors for the configuration database.
//
//	if errors.Is(err, cdb.ErrAlreadyExists) {
//	    // stored network is reused
//	}
var (
	// ErrAlreadyExists is returned by Create when a network is already stored.
	// Callers treat it as success.
	ErrAlreadyExists = errors.New("cdb: network already exists")

	// ErrNoNetwork is returned when an operation needs the network context
	// before Create or Load has established it.
	ErrNoNetwork = errors.New("cdb: no network")

	// ErrAppKeyNotFound is returned when no application key is stored for an index.
	ErrAppKeyNotFound = errors.New("cdb: app key not found")

	// ErrAppKeyExists is returned when adding an application key index twice.
	ErrAppKeyExists = errors.New("cdb: app key already exists")

	// ErrNodeNotFound is returned when no node owns an address.
	ErrNodeNotFound = errors.New("cdb: node not found")

	// ErrAddressInUse is returned when a new node's element range overlaps
	// an existing node.
	ErrAddressInUse = errors.New("cdb: address in use")

	// ErrAddressSpaceExhausted is returned when no unicast range is free.
	ErrAddressSpaceExhausted = errors.New("cdb: unicast address space exhausted")

	// ErrInvalidNode is returned when a node record fails validation.
	ErrInvalidNode = errors.New("cdb: invalid node")
)
