package canon

// Version constants for the canonical schema and engine.
const (
	// SchemaVersion is the canonical entity schema version. It changes when
	// a kind or a normalized field is added, renamed or removed.
	SchemaVersion = "1"

	// EngineVersion is the signal engine version.
	EngineVersion = "0.1.0"
)
