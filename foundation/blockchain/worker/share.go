package worker

// shareBlockOperations handles sending blocks to peers.
func (w *Worker) shareBlockOperations() {
	w.evHandler("worker: shareBlockOperations: G started")
	defer w.evHandler("worker: shareBlockOperations: G completed")

	for {
		select {
		case req := <-w.blockSharing:
			if !w.isShutdown() {
				w.runShareBlockOperation(req)
			}
		case <-w.shut:
			w.evHandler("worker: shareBlockOperations: received shut signal")
			return
		}
	}
}

// runShareBlockOperation sends the block to the known peers.
func (w *Worker) runShareBlockOperation(req shareRequest) {
	w.evHandler("worker: runShareBlockOperation: started: blk[%d]", req.block.Header.Index)
	defer w.evHandler("worker: runShareBlockOperation: completed: blk[%d]", req.block.Header.Index)

	w.state.NetSendBlockToPeers(req.block, req.exclude)
}
