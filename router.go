package client

import "github.com/jsp-lqk/metapipe-grid/internal"

type router interface {
	route(key string) *internal.Manager
	managers() []*internal.Manager
	shutdown()
}

// directRouter sends every key to its only endpoint.
type directRouter struct {
	manager *internal.Manager
}

func (r *directRouter) route(key string) *internal.Manager {
	return r.manager
}

func (r *directRouter) managers() []*internal.Manager {
	return []*internal.Manager{r.manager}
}

func (r *directRouter) shutdown() {
	r.manager.Close()
}
