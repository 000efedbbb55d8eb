package retrofit_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/retrofit"
)

// ExampleNewInMemoryEngine moves a participant through a program that
// skips the tech review and contractor quote steps.
func ExampleNewInMemoryEngine() {
	ctx := context.Background()
	eng := retrofit.NewInMemoryEngine()

	steps := retrofit.AllSteps()
	steps.TechReview = false
	steps.QuoteGeneration = false

	err := eng.RegisterProgram(ctx, retrofit.Program{
		ID:       "LIS",
		Name:     "Low Income Support",
		IsActive: true,
		Steps:    steps,
	})
	if err != nil {
		log.Fatal(err)
	}

	p, err := eng.CreateParticipant(ctx, retrofit.NewParticipant{
		ProgramID: "LIS",
		FirstName: "Grace",
		LastName:  "Hopper",
	})
	if err != nil {
		log.Fatal(err)
	}

	for p.Status != retrofit.StatusWorkordersSent {
		if p, err = eng.Next(ctx, p.ID, "advisor", ""); err != nil {
			log.Fatal(err)
		}
		fmt.Println(p.Status)
	}

	// Output:
	// AUDIT_SCHEDULED
	// INITIAL_AUDIT_COMPLETED
	// WORKORDERS_SENT
}

// ExampleDeriveSequence lists the statuses of a booking-only program.
func ExampleDeriveSequence() {
	var steps retrofit.ProgramStepConfig
	steps.Booking = true

	for _, s := range retrofit.DeriveSequence(steps) {
		fmt.Println(s)
	}

	// Output:
	// READY_FOR_BOOKING
	// AUDIT_SCHEDULED
	// COMPLETED
}

// ExampleNewLocalRunner wires an engine to a notifier through the
// in-memory outbox.
func ExampleNewLocalRunner() {
	ctx := context.Background()

	delivered := make(chan retrofit.StatusChanged, 4)
	runner := retrofit.NewLocalRunner(retrofit.NotifierFunc(
		func(ctx context.Context, p *retrofit.Participant, ev retrofit.StatusChanged) error {
			delivered <- ev
			return nil
		}))

	if err := runner.Engine.RegisterProgram(ctx, retrofit.Program{ID: "RES", Steps: retrofit.AllSteps()}); err != nil {
		log.Fatal(err)
	}
	if err := runner.StartWorkers(ctx, 1); err != nil {
		log.Fatal(err)
	}
	defer runner.Stop()

	p, err := runner.Engine.CreateParticipant(ctx, retrofit.NewParticipant{ProgramID: "RES", FirstName: "Ada"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println((<-delivered).To)

	if _, err := runner.Engine.Next(ctx, p.ID, "advisor", ""); err != nil {
		log.Fatal(err)
	}
	ev := <-delivered
	fmt.Println(ev.From, "->", ev.To)

	// Output:
	// READY_FOR_BOOKING
	// READY_FOR_BOOKING -> AUDIT_SCHEDULED
}
