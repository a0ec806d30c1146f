package route

import (
	"time"

	"github.com/bassista/go_syncstore/internal/api/controller"
	"github.com/bassista/go_syncstore/internal/api/middleware"
	"github.com/bassista/go_syncstore/internal/cache"
	"github.com/gin-gonic/gin"
)

func NewStoreRouter(timeout time.Duration, group *gin.RouterGroup, registry cache.StoreRegistry) {
	sc := controller.NewStoreController(registry)

	// event streams stay open, keep them out of the timeout group
	group.GET("stores/:key/events", sc.Events)

	timed := group.Group("")
	timed.Use(middleware.RequestTimeout(timeout))
	timed.GET("stores", sc.AllStores)
	timed.GET("stores/:key", sc.GetStore)
	timed.PUT("stores/:key", sc.SetStore)
	timed.PATCH("stores/:key", sc.PatchStore)
	timed.DELETE("stores/:key", sc.DeleteStore)
}
