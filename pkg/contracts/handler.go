package contracts

import "github.com/julienschmidt/httprouter"

// Handler is an HTTP surface mounted by app.Application. Each domain handler
// registers its own routes on the shared router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}
