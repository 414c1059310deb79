package types

type ServiceMode string

// Rider Service - ride requests, cancellations and rider-facing realtime updates
// Driver Service - accepting, starting and completing rides
// Admin Service - monitoring of active rides and connected clients
const (
	RiderService  ServiceMode = "rider-service"
	DriverService ServiceMode = "driver-service"
	AdminService  ServiceMode = "admin-service"
)

// RideStatus is the closed set of ride lifecycle states.
type RideStatus string

func (s RideStatus) String() string {
	return string(s)
}

const (
	StatusRequested  RideStatus = "requested"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Terminal reports whether no transition may leave the status.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// VehicleClass is the service tier requested by the rider. It only affects
// the fare multiplier.
type VehicleClass string

const (
	ClassUberX   VehicleClass = "uber-x"
	ClassUberXL  VehicleClass = "uber-xl"
	ClassComfort VehicleClass = "comfort"
	ClassBlack   VehicleClass = "black"
	ClassPool    VehicleClass = "pool"
)

// Enum for user roles
type UserRole string

func (r UserRole) String() string {
	return string(r)
}

const (
	RoleRider  UserRole = "rider"
	RoleDriver UserRole = "driver"
	RoleAdmin  UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// FlagSeverity grades advisory fraud flags.
type FlagSeverity string

const (
	SeverityMedium FlagSeverity = "medium"
	SeverityHigh   FlagSeverity = "high"
)
