package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveNetworkRequestLabels(t *testing.T) {
	before := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("unknown", "op", "unknown", "error"))
	ObserveNetworkRequest("", "op", "", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("unknown", "op", "unknown", "error"))
	if after-before != 1 {
		t.Fatalf("ожидали прирост 1, получили %v", after-before)
	}
}

func TestObserveResultDuplicate(t *testing.T) {
	before := testutil.ToFloat64(DuplicateResults)
	ObserveResult("done", true)
	if testutil.ToFloat64(DuplicateResults)-before != 1 {
		t.Fatal("ожидали учёт дубликата")
	}
}

func TestMustRegister(t *testing.T) {
	MustRegister(prometheus.NewRegistry())
}
