package service

import "errors"

// Validation failures are detected before anything is written; the deposit
// transaction never starts for these.
var (
	ErrMachineNotFound    = errors.New("machine not found")
	ErrMachineUnavailable = errors.New("machine is not active")
	ErrMaterialInvalid    = errors.New("material not found or inactive")
	ErrInvalidWeight      = errors.New("weight must be at least 0.001 kg")
	ErrInvalidRate        = errors.New("points_per_kg must be at least 0.01 with two decimal places")
	ErrInvalidStatus      = errors.New("invalid machine status")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
