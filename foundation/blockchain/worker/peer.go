package worker

// peerOperations handles syncing with peers on an interval.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.Sync()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// Sync asks every known peer for a longer chain. Peers synced recently
// are skipped.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, peer := range w.state.RetrieveKnownPeers() {
		if _, err := w.state.NetSyncWithPeerLimited(peer); err != nil {
			w.evHandler("worker: sync: NetSyncWithPeer: %s: ERROR: %s", peer.Host, err)
		}
	}
}
