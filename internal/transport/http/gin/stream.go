package httpgin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/parkgo/internal/domain"
	redisrepo "github.com/kirinyoku/parkgo/internal/repository/redis"
	"github.com/kirinyoku/parkgo/internal/service"
)

const streamKeepAlive = 25 * time.Second

// Hub fans availability changes out to the SSE clients of this instance.
// Slow clients miss intermediate updates rather than block the hub.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[chan domain.Availability]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[chan domain.Availability]struct{})}
}

// PublishLocationChanged makes the hub usable as the ledger's publisher
// when there is no Redis to relay through.
func (h *Hub) PublishLocationChanged(_ context.Context, c redisrepo.LocationChange) error {
	h.Broadcast(c)
	return nil
}

func (h *Hub) Broadcast(c redisrepo.LocationChange) {
	a := domain.Availability{LocationID: c.LocationID, Available: c.Available, Total: c.Total}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[c.LocationID] {
		select {
		case ch <- a:
		default:
		}
	}
}

func (h *Hub) subscribe(locationID int64) (<-chan domain.Availability, func()) {
	ch := make(chan domain.Availability, 8)

	h.mu.Lock()
	if h.subs[locationID] == nil {
		h.subs[locationID] = make(map[chan domain.Availability]struct{})
	}
	h.subs[locationID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[locationID], ch)
		if len(h.subs[locationID]) == 0 {
			delete(h.subs, locationID)
		}
		h.mu.Unlock()
	}
}

// @Summary  Stream availability changes (SSE)
// @Param    id  path  int  true  "Parking ID"
// @Produce  text/event-stream
// @Success  200  {object}  domain.Availability
// @Failure  404  {object}  ErrorResponse
// @Router   /parkings/{id}/availability/stream [get]
func handleAvailabilityStream(svcs *service.Services, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		if hub == nil {
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "streaming disabled"})
			return
		}

		ctx := c.Request.Context()

		current, err := svcs.Query.Availability(ctx, id)
		if err != nil {
			respondErr(c, err)
			return
		}

		updates, unsubscribe := hub.subscribe(id)
		defer unsubscribe()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.SSEvent("availability", current)
		c.Writer.Flush()

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case a := <-updates:
				c.SSEvent("availability", a)
			case <-ticker.C:
				c.SSEvent("ping", gin.H{"ts": time.Now().Unix()})
			}
			c.Writer.Flush()
		}
	}
}
