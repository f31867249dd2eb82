// Package types defines the storage contracts shared by the model layer and
// the backend adapters: the Adapter and Dataset interfaces, the Row and Query
// representations with their matching rules, attribute descriptors, and the
// standard error values and types.
package types
