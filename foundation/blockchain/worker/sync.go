package worker

import (
	"context"
)

// Sync connects to the bootstrap peers and requests their chains. When no
// peer is reachable the node keeps running on its own chain and the
// maintenance cycle retries.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	n := w.net.Bootstrap(context.Background())
	w.evHandler("worker: sync: peers reached[%d]", n)
}
