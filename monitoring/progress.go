package monitoring

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// A ProgressBar tracks how many cycles of the budget a run has used.
type ProgressBar struct {
	sync.Mutex
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
	Done      bool      `json:"done"`
}

func newProgressBar(name string, total uint64) *ProgressBar {
	return &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}
}

// MoveTo sets the number of finished elements. The count never goes back.
func (b *ProgressBar) MoveTo(finished uint64) {
	b.Lock()
	defer b.Unlock()

	if finished > b.Finished {
		b.Finished = finished
	}
}

// Complete marks the bar as done.
func (b *ProgressBar) Complete() {
	b.Lock()
	defer b.Unlock()

	b.Done = true
}
