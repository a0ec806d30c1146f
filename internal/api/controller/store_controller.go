package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bassista/go_syncstore/internal/cache"
	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/containerd/errdefs"
	"github.com/gin-gonic/gin"
)

// StoreController exposes the registry's synchronized stores over HTTP.
// Storage failures during a write never fail the request: the value is kept in
// memory and the failure goes to the store's reporter.
type StoreController struct {
	registry cache.StoreRegistry
}

func NewStoreController(registry cache.StoreRegistry) *StoreController {
	return &StoreController{registry: registry}
}

// AllStores handles GET /stores - returns every known key.
func (sc *StoreController) AllStores(c *gin.Context) {
	logger.WithComponent("store-controller").Debugf("GET /stores handler called")
	keys, err := sc.registry.Keys()
	if err != nil {
		logger.WithComponent("store-controller").Errorf("list stores: %v", err)
		c.JSON(errorStatus(err), gin.H{"error": "failed to list stores"})
		return
	}
	c.JSON(http.StatusOK, keys)
}

// GetStore handles GET /stores/:key - returns the current value.
func (sc *StoreController) GetStore(c *gin.Context) {
	key := c.Param("key")
	logger.WithKey("store-controller", key).Debugf("GET /stores/%s handler called", key)

	value, err := sc.registry.Get(key)
	if err != nil {
		sc.fail(c, key, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// SetStore handles PUT /stores/:key - replaces the value with the JSON body.
func (sc *StoreController) SetStore(c *gin.Context) {
	key := c.Param("key")
	logger.WithKey("store-controller", key).Debugf("PUT /stores/%s handler called", key)

	var value any
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := sc.registry.Set(key, value); err != nil {
		sc.fail(c, key, err)
		return
	}
	sc.respondValue(c, key)
}

// PatchStore handles PATCH /stores/:key - merges the JSON body into the value.
func (sc *StoreController) PatchStore(c *gin.Context) {
	key := c.Param("key")
	logger.WithKey("store-controller", key).Debugf("PATCH /stores/%s handler called", key)

	var patch any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := sc.registry.Get(key); err != nil {
		sc.fail(c, key, err)
		return
	}
	if err := sc.registry.Update(key, func(current any) any { return mergePatch(current, patch) }); err != nil {
		sc.fail(c, key, err)
		return
	}
	sc.respondValue(c, key)
}

// DeleteStore handles DELETE /stores/:key - removes the key from storage.
func (sc *StoreController) DeleteStore(c *gin.Context) {
	key := c.Param("key")
	logger.WithKey("store-controller", key).Debugf("DELETE /stores/%s handler called", key)

	if err := sc.registry.Remove(key); err != nil {
		sc.fail(c, key, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events handles GET /stores/:key/events - streams the value and every change
// as server-sent events until the client goes away.
// A slow client only receives the latest value.
func (sc *StoreController) Events(c *gin.Context) {
	key := c.Param("key")
	log := logger.WithKey("store-controller", key)
	log.Debugf("GET /stores/%s/events handler called", key)

	updates := make(chan any, 1)
	unsubscribe, err := sc.registry.Subscribe(key, func(v any) {
		for {
			select {
			case updates <- v:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	if err != nil {
		sc.fail(c, key, err)
		return
	}
	defer unsubscribe()

	ctx := c.Request.Context()
	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case v := <-updates:
			return sendValue(c, key, v)
		default:
		}
		select {
		case v := <-updates:
			return sendValue(c, key, v)
		case <-ctx.Done():
			log.Debug("event stream closed")
			return false
		}
	})
}

// sendValue writes v as one "value" event carrying its JSON encoding.
func sendValue(c *gin.Context, key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.WithKey("store-controller", key).Warnf("cannot encode value for event stream: %v", err)
		return true
	}
	c.SSEvent("value", string(data))
	return true
}

func (sc *StoreController) respondValue(c *gin.Context, key string) {
	value, err := sc.registry.Get(key)
	if err != nil {
		sc.fail(c, key, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

func (sc *StoreController) fail(c *gin.Context, key string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithKey("store-controller", key).Errorf("request failed: %v", err)
	} else {
		logger.WithKey("store-controller", key).Debugf("request rejected: %v", err)
	}
	c.JSON(status, gin.H{"error": errorMessage(err)})
}

// errorStatus maps an errdefs class to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsPermissionDenied(err):
		return http.StatusForbidden
	case errdefs.IsResourceExhausted(err):
		return http.StatusInsufficientStorage
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case errdefs.IsNotImplemented(err):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, cache.ErrInvalidKey):
		return "invalid store key"
	case errors.Is(err, cache.ErrNotFound):
		return "store not found"
	case errorStatus(err) == http.StatusInternalServerError:
		return "storage error"
	default:
		return err.Error()
	}
}
