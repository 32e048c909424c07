package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("WXVIZ_INSTANCE_ID", "api-2")
	if got := GetID(); got != "api-2" {
		t.Fatalf("expected api-2 got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("WXVIZ_INSTANCE_ID", "")
	if GetID() == "" {
		t.Fatalf("expected non-empty id")
	}
}
