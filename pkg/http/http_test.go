package xhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func newCtx(method, path string) *RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	return ctx
}

func TestEngine_MiddlewareOrder(t *testing.T) {
	e := NewServer(DefaultServerOption)

	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next RequestHandler) RequestHandler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	e.Use(mark("first"))
	e.Use(mark("second"))
	e.Router.GET("/ping", func(ctx *RequestCtx) {
		order = append(order, "handler")
		ctx.SetStatusCode(StatusOK)
	})

	ctx := newCtx("GET", "/ping")
	e.Handler()(ctx)

	assert.Equal(t, []string{"first", "second", "handler"}, order)
	assert.Equal(t, StatusOK, ctx.Response.StatusCode())
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	e := NewServer(DefaultServerOption)
	e.Router.GET("/known", func(ctx *RequestCtx) {})

	ctx := newCtx("GET", "/unknown")
	e.Handler()(ctx)
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"Not Found"}`, string(ctx.Response.Body()))

	ctx = newCtx("DELETE", "/known")
	e.Handler()(ctx)
	assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) {
		panic("boom")
	})

	ctx := newCtx("GET", "/panic")
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(func(ctx *RequestCtx) {
		seen = string(ctx.Request.Header.Peek(RequestIDHeader))
	})

	ctx := newCtx("GET", "/")
	h(ctx)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, string(ctx.Response.Header.Peek(RequestIDHeader)))

	ctx = newCtx("GET", "/")
	ctx.Request.Header.Set(RequestIDHeader, "abc")
	h(ctx)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", string(ctx.Response.Header.Peek(RequestIDHeader)))
}

func TestRequestLoggerMiddleware_PassesThrough(t *testing.T) {
	called := 0
	h := RequestLoggerMiddleware(func(ctx *RequestCtx) {
		called++
		ctx.SetStatusCode(StatusConflict)
	})

	h(newCtx("GET", "/api/v1/inbox/messages"))
	h(newCtx("GET", "/health"))
	assert.Equal(t, 2, called)
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, shouldSkip("/metrics"))
	assert.True(t, shouldSkip("/api/v1/health"))
	assert.False(t, shouldSkip("/api/v1/inbox/messages"))
}
