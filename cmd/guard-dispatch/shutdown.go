package main

import (
	"context"
	"net/http"

	"github.com/mr1hm/guard-dispatch/internal/notify"
)

// shutdown stops signal intake and the HTTP server before the notification
// queue, so replacement alerts raised by in-flight requests are still
// delivered.
func shutdown(ctx context.Context, srv *http.Server, queue *notify.Queue, intake ...func()) error {
	for _, stop := range intake {
		stop()
	}
	err := srv.Shutdown(ctx)
	queue.Stop()
	return err
}
