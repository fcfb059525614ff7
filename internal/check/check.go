// Package check validates responses with named predicates.
package check

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response is the record a single request produced.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
	Err      error
}

// Snippet returns at most n characters of the body.
func (r *Response) Snippet(n int) string {
	runes := []rune(string(r.Body))
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

// Check is a named predicate.
type Check struct {
	Name string
	Fn   func(*Response) bool
}

// Result is the outcome of one check.
type Result struct {
	Name   string
	Passed bool
}

// Outcome holds every check result and their conjunction.
type Outcome struct {
	Results []Result
	Passed  bool
}

// Failed lists the names of failed checks.
func (o Outcome) Failed() []string {
	var out []string
	for _, r := range o.Results {
		if !r.Passed {
			out = append(out, r.Name)
		}
	}
	return out
}

// Set is an ordered list of checks.
type Set []Check

// Evaluate runs every check; a failing check never prevents the rest from
// running.
func (s Set) Evaluate(resp *Response) Outcome {
	out := Outcome{
		Results: make([]Result, 0, len(s)),
		Passed:  true,
	}
	for _, c := range s {
		ok := c.Fn(resp)
		out.Results = append(out.Results, Result{Name: c.Name, Passed: ok})
		out.Passed = out.Passed && ok
	}
	return out
}

// Names lists the check names in order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

func StatusIs(code int) Check {
	return Check{
		Name: "status is " + strconv.Itoa(code),
		Fn:   func(r *Response) bool { return r.Err == nil && r.Status == code },
	}
}

// LatencyBelow fails when the request never completed, since it has no timing.
func LatencyBelow(limit time.Duration) Check {
	return Check{
		Name: "response time < " + strconv.FormatInt(limit.Milliseconds(), 10) + "ms",
		Fn:   func(r *Response) bool { return r.Err == nil && r.Duration < limit },
	}
}

func ContentTypeJSON() Check {
	return Check{
		Name: "content-type is JSON",
		Fn: func(r *Response) bool {
			if r.Header == nil {
				return false
			}
			return strings.Contains(r.Header.Get("Content-Type"), "application/json")
		},
	}
}

func BodyIsJSONArray() Check {
	return Check{
		Name: "body is a JSON array",
		Fn: func(r *Response) bool {
			_, ok := jsonArray(r.Body)
			return ok
		},
	}
}

func ArrayLenAtMost(n int) Check {
	return Check{
		Name: "at most " + strconv.Itoa(n) + " items",
		Fn: func(r *Response) bool {
			items, ok := jsonArray(r.Body)
			return ok && len(items) <= n
		},
	}
}

func jsonArray(body []byte) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, false
	}
	// "null" decodes into a nil slice without error
	if items == nil {
		return nil, false
	}
	return items, true
}
