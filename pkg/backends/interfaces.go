package backends

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wayneeseguin/servicelog/internal/metrics"
)

// maxRecvFailures is the number of consecutive mailbox receive failures a
// worker tolerates before treating the producer side as gone.
const maxRecvFailures = 3

// Worker drains one mailbox into one durable destination. Run returns
// when the mailbox is torn down, ctx is cancelled, or the destination
// fails in a way the worker cannot recover from.
type Worker interface {
	Run(ctx context.Context) error
}

// Observers carries the diagnostics sink and the metrics collector shared
// by a worker and the facade in front of it.
type Observers struct {
	// Diagnostics receives the worker's own failure reports. It must not
	// be backed by the pipeline the worker serves.
	Diagnostics logrus.FieldLogger
	Metrics     *metrics.Collector
}

func (o Observers) withDefaults(component string) Observers {
	if o.Diagnostics == nil {
		o.Diagnostics = logrus.StandardLogger()
	}
	o.Diagnostics = o.Diagnostics.WithField("component", component)
	if o.Metrics == nil {
		o.Metrics = metrics.NewCollector()
	}
	return o
}
