package http

import (
	"github.com/go-signup-api/internal/application/machine"
	"github.com/go-signup-api/internal/application/registration"
	redisstore "github.com/go-signup-api/internal/infrastructure/redis"
	"github.com/go-signup-api/internal/queue"
	"github.com/go-signup-api/internal/ratelimit"
)

// Deps holds the assembled collaborators the router wires into handlers.
// Queue is nil when asynchronous delivery is disabled; the monitoring
// endpoints then report it as such.
type Deps struct {
	Store        *redisstore.Client
	Registration registration.Service
	Machines     machine.Service
	Limiter      *ratelimit.Limiter
	Queue        *queue.Queue
}
