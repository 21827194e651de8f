package worker

import (
	"context"
	"time"
)

// peerOperations handles reconnecting to known peers and, when every
// connection was lost, running the bootstrap procedure again.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	ticker := time.NewTicker(w.maintainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation runs one maintenance cycle. It is abandoned when the
// worker shuts down.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	ctx, cancel := context.WithTimeout(context.Background(), w.maintainInterval)
	defer cancel()

	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.net.Maintain(ctx)
}

// heartbeatOperations handles pinging peers so idle connections stay alive
// and dead ones are found.
func (w *Worker) heartbeatOperations() {
	w.evHandler("worker: heartbeatOperations: G started")
	defer w.evHandler("worker: heartbeatOperations: G completed")

	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.net.Heartbeat()
			}
		case <-w.shut:
			w.evHandler("worker: heartbeatOperations: received shut signal")
			return
		}
	}
}
