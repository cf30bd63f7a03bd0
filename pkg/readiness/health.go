// package readiness implements a minimal health-checking mechanism for use as k8s readiness probes. A component
// stays ready once it has become ready for the first time; it is not meant for monitoring.
//
// Uses a global singleton registry (similar to the Prometheus client's default behavior).
package readiness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

var (
	// NoPanic allows registering a component twice, which happens when tests build several engines in one process.
	NoPanic  = false
	mu       = sync.Mutex{}
	registry = map[string]bool{}
)

type Component string

// RegisterComponent registers the given component name such that it is required to be ready for the global check to succeed.
func RegisterComponent(component Component) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[string(component)]; ok {
		if !NoPanic {
			panic("component already registered")
		}
		return
	}
	registry[string(component)] = false
}

// SetReady sets the given global component state.
func SetReady(component Component) {
	mu.Lock()
	defer mu.Unlock()
	if !registry[string(component)] {
		registry[string(component)] = true
	}
}

// IsReady reports whether every registered component has become ready.
func IsReady() bool {
	mu.Lock()
	defer mu.Unlock()
	for _, v := range registry {
		if !v {
			return false
		}
	}
	return true
}

// Handler returns 200 OK if all components are ready, or 412 Precondition Failed otherwise. For operator
// convenience, a list of components and their states is returned as plain text (not meant for machine consumption!).
func Handler(w http.ResponseWriter, r *http.Request) {
	ready := true

	resp := new(bytes.Buffer)
	_, _ = resp.WriteString("[not suitable for monitoring - do not parse]\n\n")

	mu.Lock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		v := registry[k]
		_, _ = fmt.Fprintf(resp, "%s\t%v\n", k, v)
		if !v {
			ready = false
		}
	}
	mu.Unlock()

	if !ready {
		w.WriteHeader(http.StatusPreconditionFailed)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_, _ = resp.WriteTo(w)
}

type livenessResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// LivenessHandler answers as long as the process serves HTTP at all. It is what external uptime checks poll.
func LivenessHandler(service string) http.HandlerFunc {
	body, err := json.Marshal(livenessResponse{Status: "ok", Service: service})
	if err != nil {
		panic(err)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// reset clears the registry. Tests only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = map[string]bool{}
}
