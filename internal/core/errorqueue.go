package core

// ErrorLine is one sub-message of a complex diagnostic section.
type ErrorLine struct {
	Loc     Loc
	Message string
}

// ErrorSection groups related sub-messages under a header.
type ErrorSection struct {
	Header string
	Lines  []ErrorLine
}

// PendingError is one diagnostic produced by the pipeline, queued until the
// event loop drains it. Code is a stable integer identifying the error
// class; codes never change meaning across releases.
type PendingError struct {
	Loc      Loc
	Code     int
	Message  string
	Sections []ErrorSection
}

// QueryKind discriminates query responses.
type QueryKind int

const (
	QuerySend QueryKind = iota
	QueryIdent
	QueryConstant
	QueryLiteral
)

// DispatchComponent is one concrete method resolution for a call site.
type DispatchComponent struct {
	Method   SymbolRef
	Receiver Type
}

// TypeAndOrigins carries an inferred type plus the locations that produced
// it.
type TypeAndOrigins struct {
	Type    Type
	Origins []Loc
}

// QueryResponse is the typechecker's answer to a positional query. Exactly
// the nodes covering the global state's LSPQueryLoc produce one.
type QueryResponse struct {
	Kind               QueryKind
	RetType            TypeAndOrigins
	DispatchComponents []DispatchComponent
	Constraint         *TypeConstraint
}

// ErrorQueue is the multi-producer single-consumer channel between the
// pipeline and the event loop. Producers block when the queue is full;
// backpressure is acceptable because the consumer always drains before
// scheduling the next batch.
type ErrorQueue struct {
	errors  chan *PendingError
	queries chan *QueryResponse
}

// DefaultQueueCapacity bounds each queue when the config does not say
// otherwise.
const DefaultQueueCapacity = 4096

// NewErrorQueue creates a queue with the given per-channel capacity.
func NewErrorQueue(capacity int) *ErrorQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &ErrorQueue{
		errors:  make(chan *PendingError, capacity),
		queries: make(chan *QueryResponse, capacity),
	}
}

// PushError enqueues a diagnostic. Blocks when the queue is full.
func (q *ErrorQueue) PushError(e *PendingError) {
	q.errors <- e
}

// PushQueryResponse enqueues a query response. Blocks when the queue is
// full.
func (q *ErrorQueue) PushQueryResponse(r *QueryResponse) {
	q.queries <- r
}

// DrainErrors removes and returns every queued diagnostic without blocking.
func (q *ErrorQueue) DrainErrors() []*PendingError {
	var out []*PendingError
	for {
		select {
		case e := <-q.errors:
			out = append(out, e)
		default:
			return out
		}
	}
}

// DrainQueryResponses removes and returns every queued query response
// without blocking.
func (q *ErrorQueue) DrainQueryResponses() []*QueryResponse {
	var out []*QueryResponse
	for {
		select {
		case r := <-q.queries:
			out = append(out, r)
		default:
			return out
		}
	}
}

// ErrorRegion is a scoped error collection window. Close must run on every
// exit path; when the owning state silences errors the window's diagnostics
// are drained and discarded, otherwise they stay queued for the main-thread
// accumulator.
type ErrorRegion struct {
	gs *GlobalState
}

// NewErrorRegion opens a collection window on the given state.
func NewErrorRegion(gs *GlobalState) *ErrorRegion {
	return &ErrorRegion{gs: gs}
}

// Close ends the window. Safe to call via defer alongside an early return.
func (r *ErrorRegion) Close() {
	if r.gs.SilenceErrors {
		r.gs.Errors.DrainErrors()
		r.gs.Errors.DrainQueryResponses()
	}
}
