package chatango

import "sync"

// MessageReconciler joins the two-phase b/u delivery into a single
// message event. mqueue holds messages seen via b but not yet bound to a
// final id; uqueue holds final ids seen via u but not yet claimed by a
// message. The two maps are disjoint: a temp-id lives in exactly one of
// them at a time, and a successful pairing removes it from both.
type MessageReconciler struct {
	mu     sync.Mutex
	mqueue map[string]*Message // temp-id -> pending message
	uqueue map[string]string   // temp-id -> final id
}

// NewMessageReconciler returns an empty reconciler.
func NewMessageReconciler() *MessageReconciler {
	return &MessageReconciler{
		mqueue: make(map[string]*Message),
		uqueue: make(map[string]string),
	}
}

// OnB processes a parsed b-frame message. If its temp-id already has a
// final id waiting in uqueue, the message is complete and returned ready
// to deliver. Otherwise it's parked in mqueue awaiting the matching u
// frame, and the second return value is false.
func (r *MessageReconciler) OnB(msg *Message) (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if final, ok := r.uqueue[msg.TempID]; ok {
		delete(r.uqueue, msg.TempID)
		msg.ID = final
		return msg, true
	}
	r.mqueue[msg.TempID] = msg
	return nil, false
}

// OnU processes a u-frame's (temp-id, final-id) pair. If the message
// already arrived via b and is sitting in mqueue, it's completed and
// returned ready to deliver. Otherwise the final id is parked in uqueue
// awaiting the matching b frame.
func (r *MessageReconciler) OnU(tempID, finalID string) (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg, ok := r.mqueue[tempID]; ok {
		delete(r.mqueue, tempID)
		msg.ID = finalID
		return msg, true
	}
	r.uqueue[tempID] = finalID
	return nil, false
}

// Pending reports the current size of each queue, for metrics.
func (r *MessageReconciler) Pending() (mqueue, uqueue int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mqueue), len(r.uqueue)
}

// Drop removes any pending state for tempID without completing it, used
// when a reconnect invalidates half-paired entries rather than deliver
// them with a synthetic id.
func (r *MessageReconciler) Drop(tempID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mqueue, tempID)
	delete(r.uqueue, tempID)
}

// Reset clears both queues, used on reconnect: a new session has no
// business completing pairs from a previous one.
func (r *MessageReconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mqueue = make(map[string]*Message)
	r.uqueue = make(map[string]string)
}
