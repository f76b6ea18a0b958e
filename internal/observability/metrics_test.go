package observability

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type codedErr string

func (e codedErr) Error() string { return string(e) }
func (e codedErr) Code() string  { return string(e) }

func TestMetricsObserveOutcomes(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Observe("take_loan", nil, time.Millisecond)
	m.Observe("take_loan", fmt.Errorf("wrap: %w", codedErr("insufficient_collateral")), time.Millisecond)
	m.Observe("take_loan", errors.New("boom"), time.Millisecond)

	require.Equal(1.0, testutil.ToFloat64(m.operations.WithLabelValues("take_loan", "ok")))
	require.Equal(1.0, testutil.ToFloat64(m.operations.WithLabelValues("take_loan", "insufficient_collateral")))
	require.Equal(1.0, testutil.ToFloat64(m.operations.WithLabelValues("take_loan", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe("x", nil, time.Second)
	m.SetRate(2)
	m.JobOutcome("done")
}

func TestLoggerFormatByEnv(t *testing.T) {
	var buf bytes.Buffer
	newLogger("production", &buf).Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected json output in production, got %q", buf.String())
	}
	buf.Reset()
	newLogger("local", &buf).Info("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected text output locally, got %q", buf.String())
	}
}
