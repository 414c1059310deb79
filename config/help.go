package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `ridecore - ride lifecycle backend

Usage:
  ridecore --mode=<mode> [config.yaml]

Modes:
  rider-service   ride requests, cancellations and rider realtime updates
  driver-service  accepting, starting and completing rides
  admin-service   monitoring of active rides and connected clients
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}
