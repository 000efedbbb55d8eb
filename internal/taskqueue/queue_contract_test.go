package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/retrofit/pkg/api"
)

// QueueContractSuite checks the behaviour every Queue must share.
// newQueue must return an empty queue.
type QueueContractSuite struct {
	suite.Suite
	newQueue func() Queue
	queue    Queue
}

func (s *QueueContractSuite) SetupTest() {
	s.queue = s.newQueue()
}

func notifyTask(id string, to api.ParticipantStatus) Task {
	return Task{
		ID:            id,
		Type:          TaskTypeNotifyStatusChange,
		ParticipantID: "p-" + id,
		Event: api.StatusChanged{
			Type:          api.EventStatusChanged,
			ParticipantID: "p-" + id,
			ProgramID:     "RES",
			From:          api.StatusReadyForBooking,
			To:            to,
			Actor:         "coordinator",
			At:            time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			Version:       2,
		},
	}
}

func (s *QueueContractSuite) dequeue(timeout time.Duration) (*Task, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.queue.Dequeue(ctx)
}

func (s *QueueContractSuite) TestFIFOAndPayload() {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		s.Require().NoError(s.queue.Enqueue(ctx, notifyTask(fmt.Sprint(i), api.StatusAuditScheduled)))
		// Keep enqueue timestamps distinct for backends that order by them.
		time.Sleep(2 * time.Millisecond)
	}
	s.Equal(3, s.queue.Len())

	for i := 1; i <= 3; i++ {
		got, err := s.dequeue(2 * time.Second)
		s.Require().NoError(err)
		s.Equal(fmt.Sprint(i), got.ID)
		s.Equal(TaskTypeNotifyStatusChange, got.Type)
		s.Equal("p-"+fmt.Sprint(i), got.ParticipantID)
		s.Equal(api.StatusAuditScheduled, got.Event.To)
		s.Equal(api.StatusReadyForBooking, got.Event.From)
		s.Equal(int64(2), got.Event.Version)
		s.False(got.EnqueuedAt.IsZero())
	}
	s.Equal(0, s.queue.Len())
}

func (s *QueueContractSuite) TestDequeueRespectsContext() {
	_, err := s.dequeue(50 * time.Millisecond)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *QueueContractSuite) TestNotBeforeDelaysTask() {
	ctx := context.Background()

	delayed := notifyTask("late", api.StatusCompleted)
	delayed.NotBefore = time.Now().Add(300 * time.Millisecond)
	delayed.Attempts = 2
	delayed.LastError = "smtp down"
	s.Require().NoError(s.queue.Enqueue(ctx, delayed))
	s.Require().NoError(s.queue.Enqueue(ctx, notifyTask("now", api.StatusAuditScheduled)))

	got, err := s.dequeue(2 * time.Second)
	s.Require().NoError(err)
	s.Equal("now", got.ID)

	// The delayed task is not visible yet.
	_, err = s.dequeue(50 * time.Millisecond)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Equal(1, s.queue.Len())

	got, err = s.dequeue(3 * time.Second)
	s.Require().NoError(err)
	s.Equal("late", got.ID)
	s.Equal(2, got.Attempts)
	s.Equal("smtp down", got.LastError)
}
