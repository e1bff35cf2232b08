package descriptions

import (
	"strings"
	"testing"
)

func TestGetToolDescription(t *testing.T) {
	tests := []struct {
		name string
		tool string
		want string
	}{
		{"extract", "invoice_extract_file", "header fields and line items"},
		{"list", "invoice_list", "archived invoices"},
		{"unknown", "pdf_read_file", "Tool description not available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetToolDescription(tt.tool); !strings.Contains(got, tt.want) {
				t.Errorf("GetToolDescription(%q) = %q, want it to contain %q", tt.tool, got, tt.want)
			}
		})
	}
}

func TestGetAllToolNames(t *testing.T) {
	names := GetAllToolNames()
	if len(names) != len(ToolDescriptions) {
		t.Fatalf("GetAllToolNames() returned %d names, want %d", len(names), len(ToolDescriptions))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("GetAllToolNames() not sorted: %v", names)
		}
	}
	for _, name := range names {
		if !strings.HasPrefix(name, "invoice_") {
			t.Errorf("unexpected tool name %q", name)
		}
	}
}
