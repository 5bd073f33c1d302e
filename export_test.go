package bufferhold

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"
)

func TestReport_WriteFile(t *testing.T) {
	report := sampleReport()
	report.Gaps = []Gap{{Buffer: 42, Frames: 3, Interval: 66 * time.Millisecond}}
	report.EstimatedDropped = 3
	report.Error = &ErrorInfo{Category: "memory", Message: "pool exhausted"}
	report.Warnings = []string{"slow consumer"}

	dir := t.TempDir()

	tests := []struct {
		file      string
		unmarshal func([]byte, interface{}) error
	}{
		{"report.json", json.Unmarshal},
		{"report.yaml", yaml.Unmarshal},
		{"report.YML", yaml.Unmarshal},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := report.WriteFile(path); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}

			var got Report
			if err := tt.unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if diff := cmp.Diff(report, &got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReport_WriteFile_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := sampleReport().WriteFile(path); err == nil {
		t.Fatal("WriteFile() should reject .csv")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written for an unsupported format")
	}
}
