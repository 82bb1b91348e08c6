package core

import (
	"sync"
	"testing"
)

func TestDrainErrorsEmptiesQueue(t *testing.T) {
	q := NewErrorQueue(8)
	q.PushError(&PendingError{Code: 1, Message: "first"})
	q.PushError(&PendingError{Code: 2, Message: "second"})

	drained := q.DrainErrors()
	if len(drained) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(drained))
	}
	if drained[0].Code != 1 || drained[1].Code != 2 {
		t.Error("drain must preserve push order")
	}
	if len(q.DrainErrors()) != 0 {
		t.Error("second drain must be empty")
	}
}

func TestDrainQueryResponses(t *testing.T) {
	q := NewErrorQueue(8)
	q.PushQueryResponse(&QueryResponse{Kind: QueryLiteral})
	q.PushQueryResponse(&QueryResponse{Kind: QuerySend})

	drained := q.DrainQueryResponses()
	if len(drained) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(drained))
	}
	if drained[0].Kind != QueryLiteral {
		t.Error("drain must preserve push order")
	}
}

func TestConcurrentProducers(t *testing.T) {
	q := NewErrorQueue(256)

	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 20
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.PushError(&PendingError{Code: 1})
			}
		}()
	}
	wg.Wait()

	if got := len(q.DrainErrors()); got != producers*perProducer {
		t.Errorf("expected %d errors, got %d", producers*perProducer, got)
	}
}

func TestErrorRegionSilencedDiscards(t *testing.T) {
	gs := NewGlobalState(NewErrorQueue(8))
	gs.SilenceErrors = true

	region := NewErrorRegion(gs)
	gs.Errors.PushError(&PendingError{Code: 9, Message: "worker noise"})
	gs.Errors.PushQueryResponse(&QueryResponse{Kind: QueryIdent})
	region.Close()

	if len(gs.Errors.DrainErrors()) != 0 {
		t.Error("silenced region must discard queued errors")
	}
	if len(gs.Errors.DrainQueryResponses()) != 0 {
		t.Error("silenced region must discard queued query responses")
	}
}

func TestErrorRegionUnsilencedKeeps(t *testing.T) {
	gs := NewGlobalState(NewErrorQueue(8))

	region := NewErrorRegion(gs)
	gs.Errors.PushError(&PendingError{Code: 9, Message: "real finding"})
	region.Close()

	if len(gs.Errors.DrainErrors()) != 1 {
		t.Error("unsilenced region must leave errors for the accumulator")
	}
}
