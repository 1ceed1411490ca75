package http

import (
	"github.com/lostfound-sync/internal/application/feed"
	"github.com/lostfound-sync/internal/application/grouping"
	"github.com/lostfound-sync/internal/application/item"
	"github.com/lostfound-sync/internal/application/notification"
	jwtinfra "github.com/lostfound-sync/internal/infrastructure/jwt"
	"github.com/lostfound-sync/internal/transport/http/handler"
)

// Deps holds the backend adapters the router wires into the screen endpoints. Health is optional
// and backs the readiness check.
type Deps struct {
	Notifications notification.Store
	Items         item.Store
	Feed          feed.Transport
	Images        grouping.ImageResolver
	Health        handler.Checker
	JWTProvider   *jwtinfra.Provider
}
