package types

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values (API keys, signing secrets, DSNs). It
// renders as a redaction marker everywhere except through Unmask.
type SecretString string

// String implements fmt.Stringer, returning the redaction marker.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// MarshalJSON renders the redaction marker instead of the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// Unmask returns the underlying secret value. The only way to get at it.
func (s SecretString) Unmask() string {
	return string(s)
}
