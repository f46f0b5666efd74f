// Package api exposes the studio controls as a JSON API.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/satindergrewal/vocalbooth/internal/catalog"
	"github.com/satindergrewal/vocalbooth/internal/studio"
	"github.com/satindergrewal/vocalbooth/internal/stream"
	"github.com/satindergrewal/vocalbooth/internal/visualizer"
)

// Deps are the components the router serves. Canvas, Broadcaster, MP3 and
// WebRTC may be nil.
type Deps struct {
	Studio      *studio.Controller
	Catalog     *catalog.Catalog
	Canvas      *visualizer.SnapshotCanvas
	Broadcaster *stream.Broadcaster
	MP3         http.Handler
	WebRTC      *stream.WebRTCHandler
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	h := &Handlers{
		studio:      d.Studio,
		catalog:     d.Catalog,
		canvas:      d.Canvas,
		broadcaster: d.Broadcaster,
		webrtc:      d.WebRTC,
	}

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/status", h.status)
		api.GET("/beats", h.beats)
		api.GET("/spectrum", h.spectrum)

		api.POST("/new", h.newProject)
		api.POST("/record", h.record)
		api.POST("/play", h.play)
		api.POST("/stop", h.stop)
		api.POST("/volume/instrumental", h.instrumentalVolume)
		api.POST("/volume/vocal", h.vocalVolume)
		api.POST("/beat", h.selectBeat)
		api.POST("/topic", h.topic)
		api.POST("/generate", h.generate)
	}

	r.GET("/blob/:id", h.blob)

	if d.MP3 != nil {
		r.GET("/stream", gin.WrapH(d.MP3))
	}
	if d.WebRTC != nil {
		r.POST("/offer", gin.WrapH(d.WebRTC))
		r.OPTIONS("/offer", gin.WrapH(d.WebRTC))
	}
	return r
}
