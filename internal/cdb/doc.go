// Package cdb is the provisioner's configuration database.
//
// It holds the network context (the single live network key), the
// application keys, and one Node record per admitted device. Every
// mutation is written through to a Store before the in-memory cache is
// updated, so a failed write leaves the cache as it was and the
// operation is retried on a later tick.
//
// Invariants:
//   - Create on an existing network returns ErrAlreadyExists and keeps the stored key
//   - A node's configured flag only moves from false to true
//   - Node element ranges never overlap
//
// The local device has a Node record like any other; IsSelf identifies it.
package cdb
