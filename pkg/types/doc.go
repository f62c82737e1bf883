// Package types defines the Store and Table interfaces, the canvas entity
// types (Canvas, Cell, Edit), the coordinate geometry tables shared by the
// allocation and propagation engine, and the standard error types.
package types
