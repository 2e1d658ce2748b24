package livy

import (
	"context"
	"sync"
	"time"

	"github.com/txn2/fabric-livy/pkg/credentials"
)

// staticHeaders is a HeaderSource with fixed headers.
type staticHeaders map[string]string

func (h staticHeaders) Headers(_ context.Context) (map[string]string, error) {
	return h, nil
}

// testHeaders mimics what the token cache produces.
var testHeaders = staticHeaders{
	"Authorization": "Bearer test-token",
	"Content-Type":  "application/json",
}

// newTestCreds returns a profile pointed at a test server, with poll
// intervals collapsed so tests run fast.
func newTestCreds(endpoint string) *credentials.Credentials {
	return &credentials.Credentials{
		LakehouseEndpoint:     endpoint,
		Authentication:        credentials.AuthCLI,
		SessionPollInterval:   time.Millisecond,
		StatementPollInterval: time.Millisecond,
		MaxRetries:            5,
		RetryBackoffUnit:      10 * time.Second,
	}
}

// sleepRecorder replaces the retry sleeper and records requested durations
// without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return nil
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}
