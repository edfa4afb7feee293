// Package common holds shared helpers used by several services: detecting
// the acting user for the event log audit trail and checking whether another
// instance of the binary is already running.
package common
