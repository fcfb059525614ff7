package check

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func productChecks() Set {
	return Set{
		StatusIs(http.StatusOK),
		LatencyBelow(time.Second),
		ContentTypeJSON(),
		BodyIsJSONArray(),
	}
}

func topProductChecks() Set {
	return append(productChecks(), ArrayLenAtMost(10))
}

func jsonResponse(status int, body string, d time.Duration) *Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json;charset=UTF-8")
	return &Response{Status: status, Header: h, Body: []byte(body), Duration: d}
}

func results(o Outcome) map[string]bool {
	m := make(map[string]bool, len(o.Results))
	for _, r := range o.Results {
		m[r.Name] = r.Passed
	}
	return m
}

func TestEvaluate_AllPass(t *testing.T) {
	resp := jsonResponse(200, `[{"productId":1},{"productId":2}]`, 200*time.Millisecond)

	for name, set := range map[string]Set{"products": productChecks(), "top-products": topProductChecks()} {
		t.Run(name, func(t *testing.T) {
			out := set.Evaluate(resp)
			assert.True(t, out.Passed)
			assert.Len(t, out.Results, len(set))
			assert.Empty(t, out.Failed())
		})
	}
}

func TestEvaluate_ServerError(t *testing.T) {
	resp := jsonResponse(500, `{"error":"boom"}`, 20*time.Millisecond)

	out := productChecks().Evaluate(resp)
	assert.False(t, out.Passed)
	r := results(out)
	assert.False(t, r["status is 200"])
	assert.True(t, r["response time < 1000ms"])
}

func TestEvaluate_SlowResponseFailsOnlyLatency(t *testing.T) {
	resp := jsonResponse(200, `[]`, 1500*time.Millisecond)

	out := productChecks().Evaluate(resp)
	assert.False(t, out.Passed)
	assert.Equal(t, []string{"response time < 1000ms"}, out.Failed())
}

func TestEvaluate_LatencyBoundaryIsExclusive(t *testing.T) {
	out := productChecks().Evaluate(jsonResponse(200, `[]`, time.Second))
	assert.Equal(t, []string{"response time < 1000ms"}, out.Failed())
}

func TestEvaluate_TooManyTopProducts(t *testing.T) {
	body := "[" + strings.TrimSuffix(strings.Repeat(`{"productId":1},`, 11), ",") + "]"
	resp := jsonResponse(200, body, 100*time.Millisecond)

	out := topProductChecks().Evaluate(resp)
	assert.False(t, out.Passed)
	assert.Equal(t, []string{"at most 10 items"}, out.Failed())

	assert.True(t, productChecks().Evaluate(resp).Passed)
}

func TestEvaluate_MalformedJSON(t *testing.T) {
	resp := jsonResponse(200, `"not json`, 100*time.Millisecond)

	out := topProductChecks().Evaluate(resp)
	r := results(out)

	assert.Len(t, out.Results, 5, "every check is evaluated")
	assert.False(t, r["body is a JSON array"])
	assert.False(t, r["at most 10 items"])
	assert.True(t, r["status is 200"])
	assert.True(t, r["response time < 1000ms"])
	assert.True(t, r["content-type is JSON"])
}

func TestEvaluate_NonArrayJSON(t *testing.T) {
	for _, body := range []string{`{"items":[]}`, `null`, `"not json"`, ``} {
		out := topProductChecks().Evaluate(jsonResponse(200, body, time.Millisecond))
		r := results(out)
		assert.False(t, r["body is a JSON array"], body)
		assert.False(t, r["at most 10 items"], body)
	}
}

func TestEvaluate_MissingContentType(t *testing.T) {
	resp := &Response{Status: 200, Body: []byte(`[]`), Duration: time.Millisecond}

	out := productChecks().Evaluate(resp)
	assert.Equal(t, []string{"content-type is JSON"}, out.Failed())
}

func TestEvaluate_TransportError(t *testing.T) {
	resp := &Response{Err: errors.New("connection refused"), Duration: 2 * time.Millisecond}

	out := productChecks().Evaluate(resp)
	r := results(out)
	assert.False(t, out.Passed)
	assert.False(t, r["status is 200"])
	assert.False(t, r["response time < 1000ms"])
}

func TestSnippet(t *testing.T) {
	resp := &Response{Body: []byte(strings.Repeat("가", 150))}
	assert.Equal(t, 100, len([]rune(resp.Snippet(100))))

	short := &Response{Body: []byte("oops")}
	assert.Equal(t, "oops", short.Snippet(100))
}
