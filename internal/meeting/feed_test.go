package meeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interviewly/meetkit/internal/domain"
)

func TestFeedDeliversOnlyToMatchingMeeting(t *testing.T) {
	f := NewFeed()
	a, cancelA := f.Subscribe("meeting-a")
	b, cancelB := f.Subscribe("meeting-b")
	defer cancelA()
	defer cancelB()

	f.Publish(Change{Table: TableChat, Op: OpInsert, MeetingID: "meeting-a"})

	require.Len(t, a, 1)
	assert.Empty(t, b)
}

func TestFeedCancelClosesChannel(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe("m")
	require.Equal(t, 1, f.SubscriberCount("m"))

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, f.SubscriberCount("m"))

	// Cancelling twice is safe, publishing after cancel goes nowhere.
	cancel()
	f.Publish(Change{Table: TableMeetings, Op: OpUpdate, MeetingID: "m"})
}

func TestFeedDropsForSlowSubscriberOnly(t *testing.T) {
	f := NewFeed()
	slow, cancelSlow := f.Subscribe("m")
	fast, cancelFast := f.Subscribe("m")
	defer cancelSlow()
	defer cancelFast()

	// Fill the slow subscriber's buffer, then drain the fast one as we go.
	for i := 0; i < subBuffer+5; i++ {
		f.Publish(Change{Table: TableChat, Op: OpInsert, MeetingID: "m"})
		<-fast
	}
	assert.Len(t, slow, subBuffer)

	var id domain.MeetingID = "m"
	assert.Equal(t, 2, f.SubscriberCount(id))
}
