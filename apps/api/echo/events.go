package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
)

const (
	eventsBuffer       = 64
	eventsKeepAlive    = 25 * time.Second
	headerAccelBuffing = "X-Accel-Buffering"
)

type eventApi struct {
	bus    core.EventBus
	logger core.Logger
}

// registerEventAPI takes a JWT middleware reading the token from the query string.
func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := eventApi{bus: deps.Bus, logger: deps.Logger}
	g.GET("/events", api.stream, jwt)
}

// stream sends every published core.Event as a server-sent event until the client goes away.
func (api *eventApi) stream(ctx echo.Context) error {
	events := make(chan core.Event, eventsBuffer)
	unsubscribe, err := api.bus.Subscribe(core.TopicAll, func(ev core.Event) {
		select {
		case events <- ev:
		default: // slow client: drop, it will refresh on the next event
		}
	})
	if err != nil {
		return errors.Wrap(err, "subscribing to events")
	}
	defer unsubscribe()

	// the stream outlives the server write timeout
	_ = http.NewResponseController(ctx.Response().Writer).SetWriteDeadline(time.Time{})

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set(headerAccelBuffing, "no")
	resp.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(resp, ": connected\n\n"); err != nil {
		return nil
	}
	resp.Flush()

	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				api.logger.Error("echoapi.events: marshalling event", err)
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Topic, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
