package telemetry

import (
	"os"

	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/bassista/go_syncstore/internal/syncstore"
	honeybadger "github.com/honeybadger-io/honeybadger-go"
)

// Notifier is the part of the Honeybadger client used for reporting.
type Notifier interface {
	Notify(err interface{}, extra ...interface{}) (string, error)
}

// HoneybadgerReporter forwards store failures to Honeybadger.
type HoneybadgerReporter struct {
	notifier Notifier
}

// Honeybadger configures the default Honeybadger client from HONEYBADGER_API_KEY.
// It returns nil when the key is not set.
func Honeybadger() Notifier {
	apiKey := os.Getenv("HONEYBADGER_API_KEY")
	if apiKey == "" {
		logger.WithComponent("telemetry").Info("Honeybadger is not active. To enable error reporting, set the HONEYBADGER_API_KEY environment variable.")
		return nil
	}

	honeybadger.Configure(honeybadger.Configuration{
		APIKey: apiKey,
		Env:    os.Getenv("GO_ENV"),
	})
	logger.WithComponent("telemetry").Info("Honeybadger error reporting is enabled.")
	return honeybadger.DefaultClient
}

// NewHoneybadgerReporter reports through n. It returns nil when n is nil, so
// callers can skip it.
func NewHoneybadgerReporter(n Notifier) *HoneybadgerReporter {
	if n == nil {
		return nil
	}
	return &HoneybadgerReporter{notifier: n}
}

func (r *HoneybadgerReporter) Report(f *syncstore.Failure) {
	ctx := honeybadger.Context{
		"key":   f.Key,
		"kind":  string(f.Kind),
		"codec": f.Codec,
	}
	if f.HasRaw {
		ctx["raw"] = f.Raw
	}
	if _, err := r.notifier.Notify(f, ctx, honeybadger.Tags{"syncstore", string(f.Kind)}); err != nil {
		logger.WithKey("telemetry", f.Key).Warnf("honeybadger notify failed: %v", err)
	}
}
