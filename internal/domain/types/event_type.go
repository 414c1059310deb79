package types

// RideEvent names a realtime event delivered over the notification channel.
type RideEvent string

func (s RideEvent) String() string {
	return string(s)
}

const (
	EventNewRideRequest    RideEvent = "new_ride_request"
	EventRideStatusUpdated RideEvent = "ride_status_updated"
	EventRideAccepted      RideEvent = "ride_accepted"
)
