package env

import "testing"

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("WXVIZ_LOG_FORMAT", "console")
	t.Setenv("LOG_FORMAT", "json")
	if got := First("json", "WXVIZ_LOG_FORMAT", "LOG_FORMAT"); got != "console" {
		t.Fatalf("expected console got %q", got)
	}
}

func TestGetFallsBack(t *testing.T) {
	t.Setenv("WXVIZ_UNSET_FOR_TEST", "")
	if got := Get("WXVIZ_UNSET_FOR_TEST", "dflt"); got != "dflt" {
		t.Fatalf("expected fallback got %q", got)
	}
}
