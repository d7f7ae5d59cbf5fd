package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event batch")
		return nil
	}
}

func TestDebouncer_CoalescingRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
		none bool
	}{
		{name: "create then modify stays create", ops: []Operation{OpCreate, OpModify}, want: OpCreate},
		{name: "create then delete cancels out", ops: []Operation{OpCreate, OpDelete}, none: true},
		{name: "modify then delete becomes delete", ops: []Operation{OpModify, OpDelete}, want: OpDelete},
		{name: "delete then create becomes modify", ops: []Operation{OpDelete, OpCreate}, want: OpModify},
		{name: "repeated modify stays modify", ops: []Operation{OpModify, OpModify, OpModify}, want: OpModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDebouncer(30*time.Millisecond, 10)
			defer d.stop()

			for _, op := range tt.ops {
				d.add(FileEvent{DocID: "notes/a.md", Operation: op, Timestamp: time.Now()})
			}

			if tt.none {
				select {
				case batch := <-d.output:
					t.Fatalf("expected no batch, got %v", batch)
				case <-time.After(100 * time.Millisecond):
				}
				return
			}

			batch := collectBatch(t, d.output)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Operation)
			assert.Equal(t, "notes/a.md", batch[0].DocID)
		})
	}
}

func TestDebouncer_BatchesDistinctDocuments(t *testing.T) {
	d := newDebouncer(30*time.Millisecond, 10)
	defer d.stop()

	d.add(FileEvent{DocID: "a.md", Operation: OpCreate})
	d.add(FileEvent{DocID: "b.md", Operation: OpModify})
	d.add(FileEvent{DocID: "c.md", Operation: OpDelete})

	batch := collectBatch(t, d.output)
	assert.Len(t, batch, 3)

	seen := make(map[string]Operation, len(batch))
	for _, ev := range batch {
		seen[ev.DocID] = ev.Operation
	}
	assert.Equal(t, OpCreate, seen["a.md"])
	assert.Equal(t, OpModify, seen["b.md"])
	assert.Equal(t, OpDelete, seen["c.md"])
}

func TestDebouncer_WindowResetsOnActivity(t *testing.T) {
	d := newDebouncer(60*time.Millisecond, 10)
	defer d.stop()

	d.add(FileEvent{DocID: "a.md", Operation: OpCreate})
	time.Sleep(30 * time.Millisecond)
	d.add(FileEvent{DocID: "a.md", Operation: OpModify})

	// Still inside the (re-armed) window.
	select {
	case batch := <-d.output:
		t.Fatalf("batch emitted before window elapsed: %v", batch)
	case <-time.After(30 * time.Millisecond):
	}

	batch := collectBatch(t, d.output)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := newDebouncer(30*time.Millisecond, 10)
	d.stop()
	d.stop()

	// Adds after stop are discarded.
	d.add(FileEvent{DocID: "a.md", Operation: OpCreate})
	_, open := <-d.output
	assert.False(t, open)
}
