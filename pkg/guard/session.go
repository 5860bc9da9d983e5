package guard

// State is a guarded request's position in its lifecycle. Requests move
// strictly forward:
//
//	Admitted -> InputScanning -> Forwarding ->
//	  {OutputScanning | StreamScanning} -> {Completed | Blocked | Failed}
//
// Blocked and Failed are reachable from any non-terminal state; Completed
// only from the two scanning states.
type State int

const (
	// StateAdmitted means the request holds an admission ticket.
	StateAdmitted State = iota

	// StateInputScanning means the request text is under analysis.
	StateInputScanning

	// StateForwarding means the request is on its way to the backend.
	StateForwarding

	// StateOutputScanning means a buffered response is under analysis.
	StateOutputScanning

	// StateStreamScanning means streamed output is being window-scanned.
	StateStreamScanning

	// StateCompleted means the full response reached the client.
	StateCompleted

	// StateBlocked means content policy stopped the exchange.
	StateBlocked

	// StateFailed means the backend or the client connection failed.
	StateFailed
)

var stateNames = map[State]string{
	StateAdmitted:       "admitted",
	StateInputScanning:  "input_scanning",
	StateForwarding:     "forwarding",
	StateOutputScanning: "output_scanning",
	StateStreamScanning: "stream_scanning",
	StateCompleted:      "completed",
	StateBlocked:        "blocked",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
