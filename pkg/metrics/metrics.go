package metrics

import "github.com/prometheus/client_golang/prometheus"

// MustRegister is a simple wrapper around prometheus's built in MustRegister
// which makes an attempt to handle the case that a collector has already been
// registered. This happens when a server is constructed more than once within
// one process, which our tests do.
func MustRegister(cs ...prometheus.Collector) {
	for _, c := range cs {
		err := prometheus.Register(c)
		if err != nil {
			if prometheus.Unregister(c) {
				prometheus.MustRegister(c)
			} else if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
