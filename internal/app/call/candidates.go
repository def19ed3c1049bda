package call

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// CandidateQueue buffers remote ICE candidates until the connection has a
// remote description. It is owned by the session loop and not synchronized.
type CandidateQueue struct {
	items []webrtc.ICECandidateInit
}

func (q *CandidateQueue) Push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

func (q *CandidateQueue) Len() int { return len(q.items) }

// Drain hands every queued candidate to apply in arrival order and empties
// the queue. Each candidate is attempted once even if an earlier one failed.
func (q *CandidateQueue) Drain(apply func(webrtc.ICECandidateInit) error) error {
	items := q.items
	q.items = nil
	var errs []error
	for _, c := range items {
		if err := apply(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
