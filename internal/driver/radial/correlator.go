// internal/driver/radial/correlator.go
package radial

import (
	"fmt"
	"time"
)

// KindSet is the allow-list of a pending request
type KindSet struct {
	any   bool
	kinds map[Kind]struct{}
}

// AnyKind accepts every non-control kind plus the listed control kinds
func AnyKind(control ...Kind) KindSet {
	set := KindsOf(control...)
	set.any = true
	return set
}

// KindsOf accepts exactly the listed kinds
func KindsOf(kinds ...Kind) KindSet {
	set := KindSet{kinds: make(map[Kind]struct{}, len(kinds))}
	for _, k := range kinds {
		set.kinds[k] = struct{}{}
	}
	return set
}

// Matches reports whether a line of kind k answers the request. Control kinds
// never match through the unrestricted set, so a heartbeat echo cannot be
// taken for a command reply.
func (s KindSet) Matches(k Kind) bool {
	if _, ok := s.kinds[k]; ok {
		return true
	}
	return s.any && !k.IsControl()
}

// String lists the allow-list for logs
func (s KindSet) String() string {
	out := make([]string, 0, len(s.kinds)+1)
	if s.any {
		out = append(out, "any")
	}
	for k := range s.kinds {
		out = append(out, string(k))
	}
	return fmt.Sprint(out)
}

// Response resolves a pending request
type Response struct {
	Line Line
	Err  error
}

// PendingRequest is the single in-flight expectation
type PendingRequest struct {
	Command  string
	Expected KindSet
	Deadline time.Time
	reply    chan Response
}

// Result returns the channel that receives exactly one response
func (p *PendingRequest) Result() <-chan Response {
	return p.reply
}

func (p *PendingRequest) resolve(resp Response) {
	p.reply <- resp
}

// Correlator matches classified lines against the pending request. Lines it
// does not deliver go to the ambient channel. It is not safe for concurrent
// use; a single loop owns it.
type Correlator struct {
	pending *PendingRequest
	ambient chan Line
}

// NewCorrelator creates a correlator whose ambient channel buffers up to ambientSize lines
func NewCorrelator(ambientSize int) *Correlator {
	return &Correlator{ambient: make(chan Line, ambientSize)}
}

// Ambient returns unsolicited lines in arrival order
func (c *Correlator) Ambient() <-chan Line {
	return c.ambient
}

// Pending returns the in-flight request, if any
func (c *Correlator) Pending() *PendingRequest {
	return c.pending
}

// Await registers the expectation for command. Only one request may be pending.
func (c *Correlator) Await(command string, expected KindSet, deadline time.Time) (*PendingRequest, error) {
	if c.pending != nil {
		return nil, fmt.Errorf("%w: %s awaiting %s", ErrRequestInFlight, c.pending.Command, c.pending.Expected)
	}
	c.pending = &PendingRequest{
		Command:  command,
		Expected: expected,
		Deadline: deadline,
		reply:    make(chan Response, 1),
	}
	return c.pending, nil
}

// Dispatch delivers line to the pending request when its kind qualifies and
// otherwise routes it to the ambient channel. It returns false if the line was
// dropped because the ambient buffer is full.
func (c *Correlator) Dispatch(line Line) bool {
	if c.pending != nil && c.pending.Expected.Matches(line.Kind) {
		p := c.pending
		c.pending = nil
		p.resolve(Response{Line: line})
		return true
	}

	select {
	case c.ambient <- line:
		return true
	default:
		return false
	}
}

// Expire fails the pending request with ErrTimeout once now reaches its deadline
func (c *Correlator) Expire(now time.Time) bool {
	if c.pending == nil || now.Before(c.pending.Deadline) {
		return false
	}
	p := c.pending
	c.pending = nil
	p.resolve(Response{Err: fmt.Errorf("%w: %s", ErrTimeout, p.Command)})
	return true
}

// Abort fails the pending request with err
func (c *Correlator) Abort(err error) {
	if c.pending == nil {
		return
	}
	p := c.pending
	c.pending = nil
	p.resolve(Response{Err: err})
}
