package docs

// @title           Driver Service API
// @version         1.0
// @description     Driver service handles browsing open ride requests and the driver side of the ride lifecycle: accept, start and complete. Supports WebSocket notifications for new ride requests.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3001
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
