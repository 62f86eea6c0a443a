package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expvar names are process-global, so every subtest shares one updater.
var testUpdater = NewStatsUpdater(http.NewServeMux())

func TestStatsUpdater(t *testing.T) {
	testUpdater.RegisterMetric(NumUploads)
	testUpdater.Run()
	defer testUpdater.Stop()

	testUpdater.Incr(NumUploads)
	testUpdater.Incr(NumUploads)
	testUpdater.Decr(NumUploads)

	// updates are applied asynchronously
	assert.Eventually(t, func() bool {
		metric := testUpdater.vars.Get(NumUploads)
		return metric != nil && metric.String() == "1"
	}, time.Second, 10*time.Millisecond, "expected increments and decrements to settle at 1")

	t.Run("unknown metrics are ignored", func(t *testing.T) {
		testUpdater.Incr("NoSuchMetric")

		assert.Eventually(t, func() bool {
			metric := testUpdater.vars.Get(NumUploads)
			return metric != nil && metric.String() == "1"
		}, time.Second, 10*time.Millisecond, "expected known metrics to be unaffected")
	})

	t.Run("expvar handler reports metrics", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)

		testUpdater.expvarHandler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code 200")

		var body map[string]any
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&body), "expected a JSON body")
		assert.Contains(t, body, NumUploads, "expected the registered metric to be reported")
		assert.Contains(t, body, "Uptime", "expected the uptime metric")
	})
}

// Runs after TestStatsUpdater has stopped the shared updater.
func TestUpdatesAfterStopAreDiscarded(t *testing.T) {
	assert.NotPanics(t, func() {
		testUpdater.Incr(NumUploads)
		testUpdater.Decr(NumUploads)
	}, "expected updates after Stop not to panic")
}
