package identity

import "github.com/gofiber/fiber/v2"

// Request exposes the request signals the resolver reads. Missing values are "".
type Request interface {
	Cookie(name string) string
	Query(name string) string
}

type fiberRequest struct {
	c *fiber.Ctx
}

// FromFiber adapts a fiber context to Request.
func FromFiber(c *fiber.Ctx) Request {
	return fiberRequest{c: c}
}

func (r fiberRequest) Cookie(name string) string { return r.c.Cookies(name) }
func (r fiberRequest) Query(name string) string  { return r.c.Query(name) }

// StaticRequest is a Request backed by plain maps.
type StaticRequest struct {
	Cookies map[string]string
	Params  map[string]string
}

func (r StaticRequest) Cookie(name string) string { return r.Cookies[name] }
func (r StaticRequest) Query(name string) string  { return r.Params[name] }
