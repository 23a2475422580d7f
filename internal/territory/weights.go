package territory

// Weights are the scoring constants used by the controller.
type Weights struct {
	ContestedPriority  float64 `mapstructure:"contestedPriority"`  // tile held by the opposing side
	UnclaimedPriority  float64 `mapstructure:"unclaimedPriority"`  // tile held by nobody
	DesireLineBonus    float64 `mapstructure:"desireLineBonus"`    // scaled by normalized desire-line frequency
	CapacityPressure   float64 `mapstructure:"capacityPressure"`   // scaled by remaining/capacity
	ElevationClimb     float64 `mapstructure:"elevationClimb"`     // per unit of rise
	ElevationDescend   float64 `mapstructure:"elevationDescend"`   // per unit of drop
	ProximityBonus     float64 `mapstructure:"proximityBonus"`     // divided by 1 + distance to nearest interest
	ConcealmentDivisor float64 `mapstructure:"concealmentDivisor"` // concealment / divisor
	InterestThreshold  int     `mapstructure:"interestThreshold"`  // minimum resource value of an interest point
	MaxInterests       int     `mapstructure:"maxInterests"`       // not counting the anchor
}

// DefaultWeights returns the stock tuning.
func DefaultWeights() Weights {
	return Weights{
		ContestedPriority:  100,
		UnclaimedPriority:  50,
		DesireLineBonus:    25,
		CapacityPressure:   20,
		ElevationClimb:     1.5,
		ElevationDescend:   1.0,
		ProximityBonus:     30,
		ConcealmentDivisor: 5,
		InterestThreshold:  30,
		MaxInterests:       6,
	}
}
