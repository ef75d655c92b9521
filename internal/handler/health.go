package handler

import (
	"context"
	"net/http"
	"sort"
)

// Check is one named readiness probe. A nil Probe always passes.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// HealthHandler runs every probe and answers 503 if any fails, listing each
// component's status.
func HealthHandler(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for _, c := range checks {
			if c.Probe == nil {
				components[c.Name] = "ok"
				continue
			}
			if err := c.Probe(r.Context()); err != nil {
				components[c.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[c.Name] = "ok"
		}

		failing := make([]string, 0)
		for name, s := range components {
			if s != "ok" {
				failing = append(failing, name)
			}
		}
		sort.Strings(failing)

		body := map[string]any{"status": "healthy", "components": components}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
			body["failing"] = failing
		}
		RespondJSON(w, status, body)
	}
}
