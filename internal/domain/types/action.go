package types

// Log action names used across services.
const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitReconnected       = "rabbitmq_reconnected"
	ActionServiceStarted          = "service_started"
	ActionServiceStopped          = "service_stopped"
)
