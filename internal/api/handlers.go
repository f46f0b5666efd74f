package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/satindergrewal/vocalbooth/internal/catalog"
	"github.com/satindergrewal/vocalbooth/internal/studio"
	"github.com/satindergrewal/vocalbooth/internal/stream"
	"github.com/satindergrewal/vocalbooth/internal/visualizer"
)

// Handlers serves the studio controls.
type Handlers struct {
	studio      *studio.Controller
	catalog     *catalog.Catalog
	canvas      *visualizer.SnapshotCanvas
	broadcaster *stream.Broadcaster
	webrtc      *stream.WebRTCHandler
}

// Listeners describes who is hearing the output.
type Listeners struct {
	Streams     int          `json:"streams"`
	WebRTCPeers int          `json:"webrtcPeers"`
	Output      stream.Stats `json:"output"`
}

// StatusResponse is the controller status plus output details.
type StatusResponse struct {
	studio.Status
	Listeners Listeners `json:"listeners"`
}

type volumeRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

type beatRequest struct {
	Beat string `json:"beat"`
}

type topicRequest struct {
	Topic string `json:"topic"`
}

type newProjectRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handlers) status(c *gin.Context) {
	resp := StatusResponse{Status: h.studio.Status()}
	if h.broadcaster != nil {
		resp.Listeners.Streams = h.broadcaster.ListenerCount()
		resp.Listeners.Output = h.broadcaster.Stats()
	}
	if h.webrtc != nil {
		resp.Listeners.WebRTCPeers = h.webrtc.PeerCount()
	}
	c.JSON(http.StatusOK, resp)
}

// respond writes the fresh status after a successful control.
func (h *Handlers) respond(c *gin.Context) {
	c.JSON(http.StatusOK, h.studio.Status())
}

func (h *Handlers) beats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tracks": h.catalog.Tracks()})
}

func (h *Handlers) spectrum(c *gin.Context) {
	if h.canvas == nil {
		notFound(c, "Visualization is disabled.")
		return
	}
	c.JSON(http.StatusOK, h.canvas.Snapshot())
}

func (h *Handlers) blob(c *gin.Context) {
	data, mimeType, ok := h.studio.URLs().Lookup(c.Param("id"))
	if !ok {
		notFound(c, "This recording is no longer available.")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, mimeType, data)
}

func (h *Handlers) newProject(c *gin.Context) {
	var req newProjectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body.")
			return
		}
	}
	if err := h.studio.NewProject(req.Confirm); err != nil {
		handleStudioError(c, err, "start a new project")
		return
	}
	h.respond(c)
}

func (h *Handlers) record(c *gin.Context) {
	if err := h.studio.ToggleRecord(c.Request.Context()); err != nil {
		handleStudioError(c, err, "toggle recording")
		return
	}
	h.respond(c)
}

func (h *Handlers) play(c *gin.Context) {
	if err := h.studio.Play(c.Request.Context()); err != nil {
		handleStudioError(c, err, "play")
		return
	}
	h.respond(c)
}

func (h *Handlers) stop(c *gin.Context) {
	if err := h.studio.Stop(); err != nil {
		handleStudioError(c, err, "stop")
		return
	}
	h.respond(c)
}

func (h *Handlers) instrumentalVolume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Volume must be a number between 0 and 1.")
		return
	}
	h.studio.SetInstrumentalVolume(*req.Value)
	h.respond(c)
}

func (h *Handlers) vocalVolume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Volume must be a number between 0 and 1.")
		return
	}
	h.studio.SetVocalVolume(*req.Value)
	h.respond(c)
}

func (h *Handlers) selectBeat(c *gin.Context) {
	var req beatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body.")
		return
	}
	ref := strings.TrimSpace(req.Beat)
	if ref != "" {
		if _, ok := h.catalog.Find(ref); !ok && !isSourceURI(ref) {
			notFound(c, "Unknown beat.")
			return
		}
	}
	if err := h.studio.SelectBeat(ref); err != nil {
		handleStudioError(c, err, "select a beat")
		return
	}
	h.respond(c)
}

// isSourceURI accepts anything that is neither a bare word nor a blob URL.
func isSourceURI(ref string) bool {
	if strings.HasPrefix(ref, "blob:") {
		return false
	}
	return strings.Contains(ref, "/") || strings.Contains(ref, ".")
}

func (h *Handlers) topic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body.")
		return
	}
	h.studio.SetLyricTopic(strings.TrimSpace(req.Topic))
	h.respond(c)
}

func (h *Handlers) generate(c *gin.Context) {
	text, err := h.studio.GenerateLyrics(c.Request.Context())
	if err != nil {
		handleStudioError(c, err, "generate lyrics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"lyrics": text})
}
