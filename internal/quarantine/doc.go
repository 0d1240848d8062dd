// Package quarantine isolates a bad data load and cascades the rollback
// downstream: pending exports from the load are cancelled, and sent
// exports are reversed where the destination supports it. Reversal is
// best effort; every export that could not be undone is reported for
// manual follow-up.
package quarantine
