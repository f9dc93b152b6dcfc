package models

import "time"

// ChargerState is one charger's telemetry at a point in time. Instances are
// built fresh on every fetch and never mutated afterwards.
type ChargerState struct {
	ID            string  `json:"id"`
	Power         float64 `json:"power"`
	Session       float64 `json:"session"`
	EnergyPerHour float64 `json:"energy_per_hour"`
}

// Field identifies one numeric field of a ChargerState.
type Field string

const (
	FieldPower   Field = "power"
	FieldSession Field = "session"
	FieldEnergy  Field = "energy"
)

// Fields lists all canonical fields in export order.
var Fields = []Field{FieldPower, FieldSession, FieldEnergy}

// ParseField resolves a path segment to a canonical field.
func ParseField(s string) (Field, bool) {
	switch Field(s) {
	case FieldPower, FieldSession, FieldEnergy:
		return Field(s), true
	default:
		return "", false
	}
}

// Value returns the charger's value for the field.
func (f Field) Value(c ChargerState) float64 {
	switch f {
	case FieldSession:
		return c.Session
	case FieldEnergy:
		return c.EnergyPerHour
	default:
		return c.Power
	}
}

// Sample is one exported time-series point.
type Sample struct {
	ID         int64     `json:"id"`
	ChargerID  string    `json:"charger_id"`
	Field      string    `json:"field"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}
