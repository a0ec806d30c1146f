package syncstore

import (
	"github.com/bassista/go_syncstore/internal/logger"
	"github.com/sirupsen/logrus"
)

// Reporter receives every failure a Store recovers from.
// Implementations must not call back into the reporting Store.
type Reporter interface {
	Report(f *Failure)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(f *Failure)

func (fn ReporterFunc) Report(f *Failure) {
	fn(f)
}

// LogReporter writes failures to a logrus entry.
type LogReporter struct {
	entry *logrus.Entry
}

// NewLogReporter returns a reporter logging through the "syncstore" component logger.
func NewLogReporter() *LogReporter {
	return &LogReporter{entry: logger.WithComponent("syncstore")}
}

// NewLogReporterWithEntry returns a reporter logging through entry.
func NewLogReporterWithEntry(entry *logrus.Entry) *LogReporter {
	return &LogReporter{entry: entry}
}

func (r *LogReporter) Report(f *Failure) {
	fields := logrus.Fields{
		"key":  f.Key,
		"kind": string(f.Kind),
	}
	if f.Codec != "" {
		fields["codec"] = f.Codec
	}
	if f.HasRaw {
		fields["raw"] = f.Raw
	}
	r.entry.WithFields(fields).WithError(f.Err).Error(f.Error())
}

// MultiReporter fans a failure out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(f *Failure) {
	for _, r := range m {
		if r != nil {
			r.Report(f)
		}
	}
}

// Source tells where a hydration came from.
type Source string

const (
	SourceActivation   Source = "activation"
	SourceNotification Source = "notification"
)

// Observer is notified of store lifecycle and persistence events.
// It is called with the store lock held and must not call back into the store.
type Observer interface {
	Hydrated(key string, source Source)
	Persisted(key string, err error)
	ActiveChanged(key string, active bool)
}

type nopObserver struct{}

func (nopObserver) Hydrated(string, Source) {}
func (nopObserver) Persisted(string, error) {}
func (nopObserver) ActiveChanged(string, bool) {}
