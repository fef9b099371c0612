package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specforge/internal/retry"
)

func sampleRaw() Raw {
	return Raw{
		ApplicationName:             "Billing Service",
		ApplicationType:             "Web Service",
		CentralID:                   "200001234",
		CompanyPlatform:             "Payments",
		TechPlatform:                "Java",
		TargetProductionEnvironment: "Cloud",
		HostingEnvironment:          "Kubernetes",
		InternetFacing:              "None",
		DataClassification:          "Confidential",
	}
}

func TestRemap(t *testing.T) {
	app := Remap(sampleRaw())

	assert.Equal(t, "Billing Service", app.Information.Name)
	assert.Equal(t, "200001234", app.Information.CentralID)
	assert.Equal(t, "Kubernetes", app.Architecture.HostingEnvironment)
	// "None" internet facing collapses to "No".
	assert.Equal(t, "No", app.Architecture.InternetFacing)
	assert.Equal(t, "Confidential", app.Risk.DataClassification)
	// Non-"None" classification implies sensitive data present.
	assert.Equal(t, "Yes", app.Regulatory.SensitiveData)
}

func TestRemapNoneClassification(t *testing.T) {
	raw := sampleRaw()
	raw.DataClassification = "None"
	raw.InternetFacing = "Internet"

	app := Remap(raw)
	assert.Equal(t, "Yes", app.Architecture.InternetFacing)
	assert.Equal(t, "No", app.Regulatory.SensitiveData)
}

func TestRemapJSONKeys(t *testing.T) {
	data, err := json.Marshal(Remap(sampleRaw()))
	require.NoError(t, err)

	var doc map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "Information")
	assert.Contains(t, doc, "Architecture")
	assert.Contains(t, doc, "Risk")
	assert.Contains(t, doc, "Regulatory")
	assert.Equal(t, "Billing Service", doc["Information"]["Name"])
	assert.Contains(t, doc["Regulatory"], "Sensitive Data Elements (SDE) / Personally Identifiable Information (PII)")
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "billing-service", req["codebase"])
		json.NewEncoder(w).Encode(sampleRaw())
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	app, err := client.Fetch(context.Background(), "billing-service")
	require.NoError(t, err)
	assert.Equal(t, "Billing Service", app.Information.Name)
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(sampleRaw())
	}))
	defer srv.Close()

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		Retry: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   time.Millisecond,
			RateLimitBackoff: time.Millisecond,
		},
	}, nil)
	require.NoError(t, err)

	app, err := client.Fetch(context.Background(), "billing-service")
	require.NoError(t, err)
	assert.Equal(t, "Billing Service", app.Information.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown codebase", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var statusErr *retry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}
