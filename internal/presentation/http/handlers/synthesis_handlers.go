package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/SocialGouv/champollion-go/internal/application/services"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Connection limits
const (
	maxStreamConnections = 1000
	wsWriteWait          = 10 * time.Second
)

var activeStreamConnections int64

// SynthesisHandlers serves the establishment synthesis and its deferred indicators.
type SynthesisHandlers struct {
	synthesisService *services.SynthesisService
	registry         *services.LoadRegistry
	logger           *logging.ChanneledLogger
	perfTracker      *performance.Tracker
	heartbeat        time.Duration
	upgrader         websocket.Upgrader
}

// NewSynthesisHandlers creates synthesis handlers with injected dependencies
func NewSynthesisHandlers(synthesisService *services.SynthesisService, registry *services.LoadRegistry, logger *logging.ChanneledLogger, perfTracker *performance.Tracker, heartbeat time.Duration) *SynthesisHandlers {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SynthesisHandlers{
		synthesisService: synthesisService,
		registry:         registry,
		logger:           logger,
		perfTracker:      perfTracker,
		heartbeat:        heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are already filtered by the CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// GetSynthesis handles GET /api/v1/etablissements/:siret/synthese
func (h *SynthesisHandlers) GetSynthesis(c *gin.Context) {
	siret := c.Param("siret")
	start := time.Now()
	marker := h.perfTracker.StartOperation("get_synthesis_request", siret)
	defer marker.Complete()
	h.logger.Synthesis().Debug("Received get synthesis request", "method", c.Request.Method, "path", c.Request.URL.Path, "siret", siret)

	localizer := localizerFor(c)
	load, err := h.synthesisService.Load(c.Request.Context(), siret)
	if err != nil {
		var pageErr *results.PageError
		if errors.As(err, &pageErr) {
			marker.SetError(err)
			c.JSON(pageErr.Status, pageErrorBody(pageErr, localizer))
			return
		}
		h.logger.LogError(logging.ChannelSynthesis, "load_synthesis", err, siret, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	marker.AddMetadata("loadId", load.ID)
	c.JSON(http.StatusOK, synthesisResponse(load.Snapshot(), localizer))

	marker.SetSuccess(true)
	h.logger.Perf().Info("Performance for GetSynthesis request", "duration", time.Since(start), "siret", siret, "loadId", load.ID, "success", true)
}

func (h *SynthesisHandlers) lookup(c *gin.Context) (*services.SynthesisLoad, bool) {
	loadID := c.Param("loadId")
	load, ok := h.registry.Get(loadID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Synthesis load not found", "loadId": loadID})
		return nil, false
	}
	return load, true
}

// GetSnapshot handles GET /api/v1/synthese/:loadId
func (h *SynthesisHandlers) GetSnapshot(c *gin.Context) {
	load, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, synthesisResponse(load.Snapshot(), localizerFor(c)))
}

// GetIndicator handles GET /api/v1/synthese/:loadId/indicateurs/:kind. It
// waits for the indicator to settle. A client giving up does not cancel it.
func (h *SynthesisHandlers) GetIndicator(c *gin.Context) {
	load, ok := h.lookup(c)
	if !ok {
		return
	}
	kind := c.Param("kind")
	handle := load.Deferred.Handle(kind)
	if handle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown indicator", "indicator": kind})
		return
	}

	marker := h.perfTracker.StartOperation("get_indicator_request", load.Identity.Siret)
	defer marker.Complete()

	select {
	case <-handle.Done():
	case <-c.Request.Context().Done():
		h.logger.WithContext(logging.ChannelSynthesis, c.Request.Context()).Debug("Indicator wait abandoned by client",
			"loadId", load.ID, "indicator", kind)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, indicatorResponse(handle.View(), localizerFor(c)))
}

// CancelLoad handles DELETE /api/v1/synthese/:loadId
func (h *SynthesisHandlers) CancelLoad(c *gin.Context) {
	load, ok := h.lookup(c)
	if !ok {
		return
	}
	wasSettled := load.Settled()
	h.registry.Cancel(load.ID)
	c.JSON(http.StatusOK, gin.H{"loadId": load.ID, "canceled": !wasSettled})
}

// StreamIndicators handles GET /api/v1/synthese/:loadId/stream. Each settled
// indicator is sent as an "indicator" event, then "done". A client leaving
// before the end cancels the indicators still pending.
func (h *SynthesisHandlers) StreamIndicators(c *gin.Context) {
	start := time.Now()
	load, ok := h.lookup(c)
	if !ok {
		return
	}
	// The marker fails on its own if the client leaves first.
	marker, finish := h.perfTracker.StartOperationWithContext(c.Request.Context(), "stream_indicators_request", load.Identity.Siret)
	defer finish()
	marker.AddMetadata("loadId", load.ID)

	currentConnections := atomic.LoadInt64(&activeStreamConnections)
	if currentConnections >= maxStreamConnections {
		h.logger.SSE().Warn("SSE connection limit reached",
			"loadId", load.ID,
			"currentConnections", currentConnections,
			"maxConnections", maxStreamConnections)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "SSE connection limit reached. Please try again later.",
		})
		return
	}
	atomic.AddInt64(&activeStreamConnections, 1)
	defer atomic.AddInt64(&activeStreamConnections, -1)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	clientCtx := c.Request.Context()
	localizer := localizerFor(c)
	updates := load.Updates(clientCtx)

	h.logger.SSE().Info("SSE connection established", "loadId", load.ID, "setupDuration", time.Since(start))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-clientCtx.Done():
			h.abandon(load, "sse")
			return

		case view, ok := <-updates:
			if !ok {
				if clientCtx.Err() != nil {
					h.abandon(load, "sse")
					return
				}
				if err := writeEvent(c, "done", gin.H{"loadId": load.ID}); err != nil {
					h.logger.SSE().Error("SSE write failed", "loadId", load.ID, "error", err.Error())
				}
				marker.SetSuccess(true)
				h.logger.SSE().Info("SSE stream complete", "loadId", load.ID, "streamDuration", time.Since(start))
				return
			}
			if err := writeEvent(c, "indicator", indicatorResponse(view, localizer)); err != nil {
				h.logger.SSE().Error("SSE write failed", "loadId", load.ID, "error", err.Error())
				h.abandon(load, "sse")
				return
			}

		case <-ticker.C:
			if err := writeEvent(c, "heartbeat", gin.H{"timestamp": time.Now().Format(time.RFC3339)}); err != nil {
				h.logger.SSE().Error("SSE heartbeat failed", "loadId", load.ID, "error", err.Error())
				h.abandon(load, "sse")
				return
			}
		}
	}
}

func writeEvent(c *gin.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// abandon cancels the load when its only listener went away early.
func (h *SynthesisHandlers) abandon(load *services.SynthesisLoad, transport string) {
	if load.Settled() {
		return
	}
	h.registry.Cancel(load.ID)
	h.logger.SSE().Info("Stream client disconnected, pending indicators canceled", "loadId", load.ID, "transport", transport)
}

type wsMessage struct {
	Type      string             `json:"type"`
	LoadID    string             `json:"loadId"`
	Indicator *IndicatorResponse `json:"indicator,omitempty"`
}

// StreamIndicatorsWS handles GET /api/v1/synthese/:loadId/ws, the WebSocket
// variant of StreamIndicators. Closing the socket early cancels the load.
func (h *SynthesisHandlers) StreamIndicatorsWS(c *gin.Context) {
	load, ok := h.lookup(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.SSE().Warn("WebSocket upgrade failed", "loadId", load.ID, "error", err.Error())
		return
	}
	defer conn.Close()

	localizer := localizerFor(c)

	// The read loop only exists to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	updates := load.Updates(c.Request.Context())
	for {
		select {
		case <-closed:
			h.abandon(load, "websocket")
			return

		case view, ok := <-updates:
			msg := wsMessage{Type: "done", LoadID: load.ID}
			if ok {
				resp := indicatorResponse(view, localizer)
				msg = wsMessage{Type: "indicator", LoadID: load.ID, Indicator: &resp}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.abandon(load, "websocket")
				return
			}
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(wsWriteWait))
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				h.abandon(load, "websocket")
				return
			}
		}
	}
}
