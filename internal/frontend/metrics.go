package frontend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesTotal counts analyzed files by frontend and result
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "py2graph_frontend_files_total",
		Help: "Files analyzed by frontend and result",
	}, []string{"frontend", "result"})

	// callSitesTotal counts call sites recorded in the call-graph index
	callSitesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py2graph_frontend_call_sites_total",
		Help: "Call sites recorded for cross-file resolution",
	})
)
