// Package domain defines the core types shared across the pipeline:
// loads, validation results, license records, events, export records,
// suppressions, and destination policy.
//
// Types here are plain data with small helper methods. Business logic
// lives in the service packages (validation, events, queue, quarantine);
// persistence lives in repository implementations. Nothing in this
// package imports database/sql or net/http.
package domain
