package metrics

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/drand/assemble/log/testlogger"
)

func TestMetricsServerServesRegisteredCollectors(t *testing.T) {
	l := testlogger.New(t)
	ln, err := Start(l, ":0", nil)
	if err != nil {
		t.Fatalf("Start returned %v", err)
	}
	defer ln.Close()

	ObserveEnqueue("put")
	ObserveDispatch("put")
	ObserveRetry("get")
	ObserveTerminalError("PUT_RESPONSE_ZERO")
	SetQueueDepth(3)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", ln.Addr().String()))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
}

func TestObserveTerminalErrorIgnoresNoError(t *testing.T) {
	before := testutil.ToFloat64(TerminalErrors.WithLabelValues("NO_ERROR"))
	ObserveTerminalError("NO_ERROR")
	after := testutil.ToFloat64(TerminalErrors.WithLabelValues("NO_ERROR"))
	if before != after {
		t.Fatal("NO_ERROR must never be counted as a terminal error")
	}
}

func TestObserveTerminalErrorCountsRealCodes(t *testing.T) {
	before := testutil.ToFloat64(TerminalErrors.WithLabelValues("EMPTY_BLOB_INDEX"))
	ObserveTerminalError("EMPTY_BLOB_INDEX")
	after := testutil.ToFloat64(TerminalErrors.WithLabelValues("EMPTY_BLOB_INDEX"))
	if after != before+1 {
		t.Fatalf("got %v, want %v", after, before+1)
	}
}
