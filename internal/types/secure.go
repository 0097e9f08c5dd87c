package types

import "log/slog"

const redacted = "***REDACTED***"

// SecretString holds a credential (API key, database URL). Every printing
// path (fmt verbs, JSON and slog) renders it redacted; Unmask is the only
// way to read the value.
type SecretString string

func (s SecretString) String() string   { return redacted }
func (s SecretString) GoString() string { return redacted }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// Unmask returns the plaintext. Call it only where the value is handed to a
// client or driver.
func (s SecretString) Unmask() string {
	return string(s)
}
