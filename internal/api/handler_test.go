package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    string
	}{
		{"defaults", "", DefaultLimit, 0, ""},
		{"custom", "?limit=50&offset=100", 50, 100, ""},
		{"at max", "?limit=1000", MaxLimit, 0, ""},
		{"zero limit uses default", "?limit=0", DefaultLimit, 0, ""},
		{"exceeds max", "?limit=2000", 0, 0, "limit exceeds maximum of 1000"},
		{"negative limit", "?limit=-1", 0, 0, "value out of range"},
		{"negative offset", "?offset=-1", 0, 0, "value out of range"},
		{"non-numeric limit", "?limit=abc", 0, 0, "invalid syntax"},
		{"non-numeric offset", "?offset=xyz", 0, 0, "invalid syntax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs"+tt.query, nil)

			limit, offset, err := parsePagination(req)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d/%d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
