package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInstrumentRecordsStatusAndLabel(t *testing.T) {
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), func(*http.Request) string { return "/fixed" })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/fixed", "418"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/anything/123", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/fixed", "418"))
	assert.Equal(t, before+1, after)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInFlight))
}

func TestSetLevelFallsBackToInfo(t *testing.T) {
	SetLevel("debug")
	assert.Equal(t, "debug", Logger().GetLevel().String())
	SetLevel("nonsense")
	assert.Equal(t, "info", Logger().GetLevel().String())
}
