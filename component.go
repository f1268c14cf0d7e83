package navbake

import (
	"github.com/lnkwrm/navbake/nav"
)

// Component bundles the runtime objects a successful bake produces: the
// serialized tile data, the navigation mesh built from it and a query
// bound to that mesh.
type Component struct {
	Data  *nav.MeshData
	Mesh  *nav.NavMesh
	Query *nav.NavMeshQuery

	closed bool
}

// Close tears the component down in reverse construction order. It is
// safe to call more than once; after the first call the component no
// longer answers queries.
func (c *Component) Close() {
	if c == nil || c.closed {
		return
	}
	c.closed = true
	c.Query = nil
	if c.Mesh != nil {
		c.Mesh.Close()
		c.Mesh = nil
	}
	c.Data = nil
}

// Closed reports whether the component has been torn down.
func (c *Component) Closed() bool {
	return c == nil || c.closed
}
