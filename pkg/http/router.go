package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

// CreateDefaultRouter returns a router that answers unknown paths and
// methods with JSON errors and exposes the matched route path.
func CreateDefaultRouter() *Router {
	r := router.New()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	writeStatusError(ctx, StatusNotFound)
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	writeStatusError(ctx, StatusMethodNotAllowed)
}

func writeStatusError(ctx *RequestCtx, code int) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.SetStatusCode(code)
	ctx.SetBodyString(`{"error":"` + StatusText(code) + `"}`)
}
