// Package model implements the persistable-record contract and the
// association engine. Application code declares record types (datasets with
// typed attribute descriptors) and relationships between them during a
// startup declaration phase; records then persist themselves through whatever
// backend adapter their type resolves to, with uniform query, validation,
// change-tracking, and cascade semantics across backends.
package model
