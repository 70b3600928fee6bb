package constants

// Common error messages
const (
	ErrInvalidSession   = "invalid user_id or session"
	ErrInvalidJSON      = "invalid json or missing fields"
	ErrDB               = "DB error"
	ErrMethodNotAllowed = "Method Not Allowed"
	ErrPleaseLogin      = "Please login to continue."
)

// Content types
const (
	ContentTypeHeader = "Content-Type"
	ContentTypeJSON   = "application/json"
)

// NBSP shows up in exported spreadsheets instead of regular spaces and has
// to be normalized away before any cell comparison.
const NBSP = " "
