package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder("zedsrc")

	r.Buffer(0, false)
	r.Buffer(16*time.Millisecond, true)
	r.Buffer(50*time.Millisecond, true)
	r.Buffer(-5*time.Millisecond, true) // backwards PTS
	r.Gap(2)
	r.Gap(0)
	r.SetHeld(3)
	r.BusMessage("qos")
	r.BusMessage("qos")
	r.BusMessage("warning")
	r.QoSDropped(7)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"buffers", testutil.ToFloat64(r.buffers), 4},
		{"gaps", testutil.ToFloat64(r.gaps), 2},
		{"dropped", testutil.ToFloat64(r.dropped), 2},
		{"held", testutil.ToFloat64(r.held), 3},
		{"qos messages", testutil.ToFloat64(r.busMessages.WithLabelValues("qos")), 2},
		{"warning messages", testutil.ToFloat64(r.busMessages.WithLabelValues("warning")), 1},
		{"qos dropped", testutil.ToFloat64(r.qosDropped), 7},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	m := &dto.Metric{}
	if err := r.ptsInterval.Write(m); err != nil {
		t.Fatalf("histogram write: %v", err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("histogram samples = %d, want 2", got)
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Buffer(time.Millisecond, true)
	r.Gap(1)
	r.SetHeld(1)
	r.BusMessage("eos")
	r.QoSDropped(1)
	if r.Registry() != nil {
		t.Error("nil recorder should have no registry")
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder("argus")
	r.Buffer(0, false)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body := new(strings.Builder)
	if _, err := io.Copy(body, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}

	want := `bufferhold_buffers_total{source="argus"} 1`
	if !strings.Contains(body.String(), want) {
		t.Errorf("metrics output missing %q:\n%s", want, body.String())
	}
}

func TestRecorder_SeparateRegistries(t *testing.T) {
	a := NewRecorder("zedsrc")
	b := NewRecorder("zedsrc")
	a.Buffer(0, false)

	if got := testutil.ToFloat64(b.buffers); got != 0 {
		t.Errorf("second recorder buffers = %v, want 0", got)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", NewRecorder("zedsrc"))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
