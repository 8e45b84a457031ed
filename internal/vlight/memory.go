package vlight

// Memory holds the values a virtual light remembers between events.
// Stored as JSON in the resource_state table when a store is configured.
type Memory struct {
	LastOnBrightness          *int `json:"last_on_brightness,omitempty"`
	LastOnTempKelvin          *int `json:"last_on_temp_kelvin,omitempty"`
	OverwriteNextOnBrightness *int `json:"overwrite_next_on_brightness,omitempty"`
	OverwriteNextOnTempKelvin *int `json:"overwrite_next_on_temp_kelvin,omitempty"`
}

// MemoryStore persists Memory by virtual light ID.
// storage.TypedStore[Memory] satisfies it.
type MemoryStore interface {
	Get(id string) (Memory, int64, error)
	Set(id string, value Memory) error
}
