// Package queue implements the export queue: candidates go in, pass
// suppression and duplicate checks, get auto- or manually approved per
// destination policy, and are sent by a bounded worker pool. Every sent
// export lands in a permanent history ledger with its estimated cost.
package queue
