package types

// Event is the flattened form of a contract event carried in a call outcome.
// Attribute values are already rendered as strings.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
