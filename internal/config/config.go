package config

const (
	DefaultTimeZone = "Europe/Oslo"

	// PageSize is the hard page limit for row scans against storage.
	// Large periods must be fetched page by page, never in one call.
	PageSize = 1000

	// RematchSchedule runs the bulk rematch of unmatched import rows
	// nightly, after new manual matches have been learned during the day.
	DefaultRematchSchedule = "0 3 * * *"

	// MaxUploadBytes caps multipart supplier report uploads (32MB).
	MaxUploadBytes = 32 << 20
)
