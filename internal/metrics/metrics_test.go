package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncComponentStart("relay")
	IncComponentStart("relay")
	IncComponentRestart("relay")
	IncComponentStop("relay")
	SetComponentRunning("relay", true)
	IncRelayPost("telemetry", true)
	IncRelayPost("image", false)
	IncImageShed()
	IncLinkMessage("ATTITUDE")
	IncProximityMerge(true)
	IncProximityMerge(false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"astra_component_starts_total":   false,
		"astra_component_restarts_total": false,
		"astra_component_stops_total":    false,
		"astra_component_running":        false,
		"astra_relay_posts_total":        false,
		"astra_relay_images_shed_total":  false,
		"astra_link_messages_total":      false,
		"astra_proximity_merges_total":   false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestRegisterReachesEachRegistry(t *testing.T) {
	first := prometheus.NewRegistry()
	if err := Register(first); err != nil {
		t.Fatalf("first registry: %v", err)
	}
	second := prometheus.NewRegistry()
	if err := Register(second); err != nil {
		t.Fatalf("second registry: %v", err)
	}

	IncComponentStart("dual-registry")

	mfs, err := second.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "astra_component_starts_total" {
			return
		}
	}
	t.Fatalf("collectors never registered with the second registry")
}

func TestHandlerServesMetrics(t *testing.T) {
	_ = Register(prometheus.DefaultRegisterer)
	IncComponentStart("handler-test")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "astra_component_starts_total") {
		t.Fatalf("metrics endpoint missing agent collectors")
	}
}
