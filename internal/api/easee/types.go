package easee

// TokenResponse is the body of a successful login or refresh call.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Charger is one entry of the charger listing. The API returns more fields;
// only the id is consumed.
type Charger struct {
	ID string `json:"id"`
}

// ChargerObservation is the state of a single charger. Fields are pointers so
// an absent field can be told apart from a zero reading.
type ChargerObservation struct {
	TotalPower    *float64 `json:"totalPower"`
	SessionEnergy *float64 `json:"sessionEnergy"`
	EnergyPerHour *float64 `json:"energyPerHour"`
}
