// Package model defines the core data types shared across components:
// instrument tokens, ticks, cursors, connection state, and the wire
// parsing for upstream tick frames.
package model
