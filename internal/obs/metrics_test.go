package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/employees/abc":           "/v1/employees/:id",
		"/v1/employees/abc/photo":     "/v1/employees/:id/photo",
		"/v1/assets/abc":              "/v1/assets/:id",
		"/v1/handovers/abc/complete":  "/v1/handovers/:id/complete",
		"/v1/employees/abc/x/y":       "/v1/employees/abc/x/y",
		"/v1/sync/status":             "/v1/sync/status",
		"/v1/employees?status=active": "/v1/employees",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
