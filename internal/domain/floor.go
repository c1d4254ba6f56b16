package domain

import (
	"fmt"

	"github.com/slavakukuyev/elevator-fleet/internal/constants"
)

// Floor represents a floor number in a building
type Floor int

// NewFloor creates a new Floor without validation
func NewFloor(value int) Floor {
	return Floor(value)
}

// NewFloorWithValidation creates a Floor from client-supplied input (the
// HTTP hall/cab-call endpoints in internal/httpapi), rejecting values
// outside the fleet's absolute sanity bounds before fleet-specific button
// legality (domain.IsLegalButton) is even considered.
func NewFloorWithValidation(value int) (Floor, error) {
	if !Floor(value).isValidAbsolute() {
		return Floor(0), NewValidationError(
			fmt.Sprintf("floor value %d is outside allowed range [%d, %d]",
				value, constants.MinAllowedFloor, constants.MaxAllowedFloor), nil).
			WithContext("floor", value).
			WithContext("min_allowed", constants.MinAllowedFloor).
			WithContext("max_allowed", constants.MaxAllowedFloor)
	}
	return Floor(value), nil
}

// Value returns the integer value of the floor
func (f Floor) Value() int {
	return int(f)
}

// isValidAbsolute checks if the floor is within the system's absolute sanity
// limits, independent of any fleet's actual floor count.
func (f Floor) isValidAbsolute() bool {
	return int(f) >= constants.MinAllowedFloor && int(f) <= constants.MaxAllowedFloor
}

// Distance calculates the distance between two floors
func (f Floor) Distance(other Floor) int {
	diff := int(f) - int(other)
	if diff < 0 {
		return -diff
	}
	return diff
}

// String returns string representation of the floor
func (f Floor) String() string {
	return fmt.Sprintf("%d", int(f))
}
