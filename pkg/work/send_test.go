package work_test

import (
	"testing"

	"github.com/cuemby/gpirm/pkg/work"
	"github.com/stretchr/testify/assert"
)

func TestSendTrackerAcksFIFO(t *testing.T) {
	tr := work.NewSendTracker()

	var fired []int
	tr.Defer(7, func() { fired = append(fired, 1) })
	tr.Defer(7, func() { fired = append(fired, 2) })
	assert.Equal(t, 2, tr.Pending(7))

	tr.Ack(7, 1)
	assert.Equal(t, []int{1}, fired)
	assert.Equal(t, 1, tr.Pending(7))

	tr.Ack(7, 5)
	assert.Equal(t, []int{1, 2}, fired)
	assert.Equal(t, 0, tr.Pending(7))
}

func TestSendTrackerAckIsPerServer(t *testing.T) {
	tr := work.NewSendTracker()

	fired := false
	tr.Defer(7, func() { fired = true })
	tr.Ack(8, 1)
	assert.False(t, fired)
	assert.Equal(t, 1, tr.Pending(7))
}

func TestSendTrackerCreditDeadParticipantFiresAll(t *testing.T) {
	tr := work.NewSendTracker()

	n := 0
	tr.Defer(7, func() { n++ })
	tr.Defer(7, func() { n++ })
	tr.CreditDeadParticipant(7)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, tr.Pending(7))
}
