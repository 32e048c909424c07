package instance

import "os"

// GetID returns the replica identifier used in lock owner tokens.
// WXVIZ_INSTANCE_ID wins, then the hostname.
func GetID() string {
	if id := os.Getenv("WXVIZ_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "wxviz-0"
}
