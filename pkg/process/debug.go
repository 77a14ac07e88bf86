// Copyright (C) 2025 Shellnoq, Inc.
// See LICENSE for copying information.

package process

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spacemonkeygo/monkit/v3/present"
	"go.uber.org/zap"
)

var debugAddr = flag.String("debug.addr", "127.0.0.1:0", "address to listen on for debug endpoints")

func init() {
	// importing net/http/pprof registers handlers on the default mux;
	// nothing here serves that mux, so clear them out.
	*http.DefaultServeMux = http.ServeMux{}
}

func initDebug(logger *zap.Logger, registry *monkit.Registry) (err error) {
	if *debugAddr == "" {
		return nil
	}

	var mux http.ServeMux
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/mon/", http.StripPrefix("/mon", present.HTTP(registry)))
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeMetrics(w, registry)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	})

	ln, err := net.Listen("tcp", *debugAddr)
	if err != nil {
		return Error.Wrap(err)
	}
	go func() {
		logger.Debug("debug server listening", zap.Stringer("addr", ln.Addr()))
		if err := (&http.Server{Handler: &mux}).Serve(ln); err != nil {
			logger.Error("debug server died", zap.Error(err))
		}
	}()
	return nil
}

// writeMetrics writes the prometheus text exposition format.
// https://prometheus.io/docs/instrumenting/exposition_formats/
func writeMetrics(w http.ResponseWriter, registry *monkit.Registry) {
	registry.Stats(func(key monkit.SeriesKey, field string, val float64) {
		measurement := sanitize(key.Measurement)
		var labels []string
		for tag, tagVal := range key.Tags.All() {
			labels = append(labels, sanitize(tag)+"=\""+sanitize(tagVal)+"\"")
		}
		labels = append(labels, "field=\""+sanitize(field)+"\"")

		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n%s{%s} %g\n",
			measurement, measurement, strings.Join(labels, ","), val)
	})
}

// sanitize maps val to the prometheus name charset.
// https://prometheus.io/docs/concepts/data_model/ specifies metric names
// must match [a-zA-Z_:][a-zA-Z0-9_:]*; the colons are reserved for
// recording rules.
func sanitize(val string) string {
	if val == "" {
		return ""
	}
	if '0' <= val[0] && val[0] <= '9' {
		val = "_" + val
	}
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z':
			return r
		case 'A' <= r && r <= 'Z':
			return r
		case '0' <= r && r <= '9':
			return r
		default:
			return '_'
		}
	}, val)
}
