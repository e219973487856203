// Package logging configures slog for searchkit processes: JSON records to a
// size-rotated file, optionally mirrored to stderr.
package logging
