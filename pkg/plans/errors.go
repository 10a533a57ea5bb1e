package plans

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrFailedToLoadPlans        = errors.New("failed to load plans")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
)
