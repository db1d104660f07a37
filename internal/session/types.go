package session

import "time"

// Data is the server-side state bound to a session cookie.
type Data struct {
	// User is the serialized principal (the subject id); empty when anonymous.
	User string `json:"user,omitempty"`

	// Flows are the login attempts started from this session and not yet
	// completed, oldest first.
	Flows []Flow `json:"flows,omitempty"`

	// CreatedAt is when the session was created (Unix timestamp).
	CreatedAt int64 `json:"created_at"`
}

// Flow is one pending authorization request.
type Flow struct {
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier"`
	StartedAt    int64  `json:"started_at"`
}

// Expired reports whether the flow is older than lifetime.
func (f Flow) Expired(now time.Time, lifetime time.Duration) bool {
	return now.After(time.Unix(f.StartedAt, 0).Add(lifetime))
}

// AddFlow appends f and drops the oldest flows beyond max.
func (d *Data) AddFlow(f Flow, max int) {
	d.Flows = append(d.Flows, f)
	if max > 0 && len(d.Flows) > max {
		d.Flows = append([]Flow(nil), d.Flows[len(d.Flows)-max:]...)
	}
}

// TakeFlow removes and returns the flow carrying state.
func (d *Data) TakeFlow(state string) (Flow, bool) {
	for i, f := range d.Flows {
		if f.State == state {
			d.Flows = append(d.Flows[:i:i], d.Flows[i+1:]...)
			return f, true
		}
	}
	return Flow{}, false
}

// PruneFlows drops flows older than lifetime.
func (d *Data) PruneFlows(now time.Time, lifetime time.Duration) {
	kept := d.Flows[:0]
	for _, f := range d.Flows {
		if !f.Expired(now, lifetime) {
			kept = append(kept, f)
		}
	}
	d.Flows = kept
}

// Empty reports whether there is nothing worth persisting.
func (d *Data) Empty() bool {
	return d.User == "" && len(d.Flows) == 0
}
