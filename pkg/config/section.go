package config

// Section is one named block of configuration, such as "downloads" or "browser".
// Sections own their defaults and validation; the Manager only moves their
// data between memory and the Store.
type Section interface {
	// ID returns the key under which the section is persisted
	ID() string

	// Title returns a human-readable name
	Title() string

	// Description explains what the section controls
	Description() string

	// Data returns the section as plain values suitable for serialization
	Data() map[string]any

	// SetData applies values read from the store. Unknown keys are ignored.
	SetData(data map[string]any) error

	// Validate reports whether the current values are usable
	Validate() error

	// Reset restores defaults
	Reset()
}
