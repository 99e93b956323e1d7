package hardware

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/status-im/signingkeychain-go/apdu"
)

const metricsNamespace = "signingkeychain"

var (
	apduExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hardware",
			Name:      "apdu_exchanges_total",
			Help:      "APDU exchanges with a hardware device by instruction and status word.",
		},
		[]string{"ins", "sw"},
	)

	connectionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hardware",
			Name:      "connection_retries_total",
			Help:      "Transport reopen attempts made while waiting for the wallet app.",
		},
	)

	userRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hardware",
			Name:      "user_rejections_total",
			Help:      "Requests denied by the user on the device.",
		},
	)
)

// RegisterMetrics registers the hardware collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{apduExchanges, connectionRetries, userRejections} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

func observeExchange(ins uint8, sw uint16) {
	apduExchanges.WithLabelValues(fmt.Sprintf("%02x", ins), fmt.Sprintf("%04x", sw)).Inc()
	if sw == apdu.SwConditionsNotSatisfied {
		userRejections.Inc()
	}
}
