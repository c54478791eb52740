package peer

import (
	"context"
	"sync"
	"time"

	"github.com/psforever/GameLogger/gamerecord"
	"github.com/psforever/GameLogger/ipc"
)

// Replayer is a Handler that streams a fixed list of records while capture
// is running. Each start replays from the beginning.
type Replayer struct {
	client   *Client
	records  []gamerecord.Record
	batch    int
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	sent    int
	sendErr error
}

// NewReplayer streams records through client in batches of batch records,
// pausing interval between batches.
func NewReplayer(client *Client, records []gamerecord.Record, batch int, interval time.Duration) *Replayer {
	if batch <= 0 {
		batch = 64
	}
	return &Replayer{client: client, records: records, batch: batch, interval: interval}
}

// Sent returns the number of records sent so far and the last send error.
func (r *Replayer) Sent() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent, r.sendErr
}

// Done is closed when the current replay ends. It is nil before the first
// start.
func (r *Replayer) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// StartCapture implements Handler.
func (r *Replayer) StartCapture() (bool, ipc.CaptureError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return false, ipc.CaptureErrorUnknown
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.sent = 0
	r.sendErr = nil
	go r.stream(ctx, r.done)
	return true, 0
}

// StopCapture implements Handler. No records are sent after it returns.
func (r *Replayer) StopCapture() (bool, ipc.CaptureError) {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return false, ipc.CaptureErrorNotCapturing
	}
	cancel()
	<-done
	return true, 0
}

func (r *Replayer) stream(ctx context.Context, done chan struct{}) {
	defer close(done)
	for start := 0; start < len(r.records); start += r.batch {
		if ctx.Err() != nil {
			return
		}
		end := min(start+r.batch, len(r.records))
		err := r.client.Send(ipc.NewRecords{Records: r.records[start:end]})

		r.mu.Lock()
		if err != nil {
			r.sendErr = err
		} else {
			r.sent = end
		}
		r.mu.Unlock()
		if err != nil {
			return
		}

		if r.interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.interval):
			}
		}
	}
}
