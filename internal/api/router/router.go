package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/imageq/image-resizer/internal/api/handlers/task"
	"github.com/imageq/image-resizer/internal/middleware"
)

func Setup(h *task.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api/v1")

	images := api.Group("/images")
	images.POST("/resize", h.Resize)    // submitting a resize task
	images.GET("/result/:id", h.Result) // one-shot result download

	api.GET("/status/:id", h.Status) // polling task state

	return r
}
