// Package ledger holds the data model and storage for the hash-chained
// grant disbursement ledger.
//
// Every financial movement is recorded as an Entry. Entries form a single
// hash-linked sequence: each entry carries the SHA-256 of its canonical
// payload and the hash of the entry appended before it, making any
// after-the-fact modification detectable. Balanced bundles of entries are
// grouped into Transactions, which carry the multi-signature approval state.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and single-node deployments.
//   - PostgresStore: durable, for production use.
package ledger
