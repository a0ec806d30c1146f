package telemetry

import (
	"errors"
	"testing"

	"github.com/bassista/go_syncstore/internal/syncstore"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(err interface{}, extra ...interface{}) (string, error) {
	args := m.Called(err, extra)
	return args.String(0), args.Error(1)
}

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestMetrics_Report(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(MetricFailures.WithLabelValues("decode"))

	m.Report(&syncstore.Failure{Kind: syncstore.KindDecode, Key: "k"})

	assert.Equal(t, before+1, testutil.ToFloat64(MetricFailures.WithLabelValues("decode")))
}

func TestMetrics_Observer(t *testing.T) {
	m := NewMetrics()
	okBefore := testutil.ToFloat64(MetricWrites.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(MetricWrites.WithLabelValues("error"))
	hydBefore := testutil.ToFloat64(MetricHydrations.WithLabelValues("notification"))
	activeBefore := testutil.ToFloat64(MetricActiveStores)

	m.Persisted("k", nil)
	m.Persisted("k", errors.New("full"))
	m.Hydrated("k", syncstore.SourceNotification)
	m.ActiveChanged("k", true)
	m.ActiveChanged("j", true)
	m.ActiveChanged("k", false)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(MetricWrites.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(MetricWrites.WithLabelValues("error")))
	assert.Equal(t, hydBefore+1, testutil.ToFloat64(MetricHydrations.WithLabelValues("notification")))
	assert.Equal(t, activeBefore+1, testutil.ToFloat64(MetricActiveStores))
}

func TestHoneybadgerReporter_Report(t *testing.T) {
	n := &MockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return("id", nil)

	r := NewHoneybadgerReporter(n)
	f := &syncstore.Failure{Kind: syncstore.KindStorageWrite, Key: "count", Raw: "5", HasRaw: true, Err: errors.New("denied")}
	r.Report(f)

	require.Len(t, n.Calls, 1)
	assert.Equal(t, f, n.Calls[0].Arguments.Get(0))
	extra := n.Calls[0].Arguments.Get(1).([]interface{})
	ctx := extra[0].(honeybadger.Context)
	assert.Equal(t, "count", ctx["key"])
	assert.Equal(t, "5", ctx["raw"])
	assert.Equal(t, honeybadger.Tags{"syncstore", "storage_write"}, extra[1])
}

func TestHoneybadgerReporter_NotifyErrorIsSwallowed(t *testing.T) {
	n := &MockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return("", errors.New("offline"))

	r := NewHoneybadgerReporter(n)
	assert.NotPanics(t, func() {
		r.Report(&syncstore.Failure{Kind: syncstore.KindDecode, Key: "k"})
	})
}

func TestHoneybadger_DisabledWithoutKey(t *testing.T) {
	t.Setenv("HONEYBADGER_API_KEY", "")
	assert.Nil(t, Honeybadger())
	assert.Nil(t, NewHoneybadgerReporter(nil))
}
