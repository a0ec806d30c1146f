package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/telemetry"
	"github.com/gin-gonic/gin"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
)

// HoneybadgerMiddleware sends error/warning notifications through notifier.
// With a nil notifier it does nothing.
// On panic, it notifies and re-panics to allow gin.Recovery to handle the response.
func HoneybadgerMiddleware(notifier telemetry.Notifier) gin.HandlerFunc {
	if notifier == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	log := logger.WithComponent("http")
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				_, _ = notifier.Notify(fmt.Sprintf("Panic: %s %s", c.Request.Method, c.Request.URL.Path),
					c.Request, honeybadger.Context{"stack": string(debug.Stack())}, honeybadger.Tags{"panic", "http"})
				log.Error("Recovered from panic, notified Honeybadger: ", rec)
				panic(rec)
			}
		}()

		c.Next()

		status := c.Writer.Status()
		if status < 400 || status == 404 {
			return
		}
		ctx := honeybadger.Context{"store_key": c.Param("key")}
		if status >= 500 {
			_, _ = notifier.Notify(fmt.Sprintf("Error: HTTP %d: %s %s", status, c.Request.Method, c.Request.URL.Path), c.Request, ctx, honeybadger.Tags{"5XX", "http"})
		} else {
			// 4xx as a notice, without the request
			_, _ = notifier.Notify(fmt.Sprintf("Warning: HTTP %d: %s %s", status, c.Request.Method, c.Request.URL.Path), ctx, honeybadger.Tags{"4XX", "http"})
		}
		log.Warnf("Honeybadger reported HTTP %d for %s %s", status, c.Request.Method, c.Request.URL.Path)
	}
}
