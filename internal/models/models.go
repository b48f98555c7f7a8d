// Package models provides data model definitions for SetForge Core.
package models

// UUID is a string-typed UUID v4 identifier.
type UUID string

// String returns the UUID as a plain string.
func (u UUID) String() string {
	return string(u)
}
