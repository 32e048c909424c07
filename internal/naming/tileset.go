package naming

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	maxTilesetIDLength = 32
	maxDerivedNameLen  = 20
	defaultTilesetName = "weather_data"
	tilesetPrefix      = "wx"
	batchPrefix        = "wxb_"
	batchIDChars       = 8
	stampLayout        = "01021504"
)

// Synthesizer builds tileset identifiers. The clock is injectable so ids are
// reproducible in tests.
type Synthesizer struct {
	now func() time.Time
}

// NewSynthesizer returns a Synthesizer using now, or time.Now when nil.
func NewSynthesizer(now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	return &Synthesizer{now: now}
}

// TilesetID derives a Mapbox-safe tileset id of at most 32 characters from
// the stored filename, an optional user supplied name and an optional batch id.
func (s *Synthesizer) TilesetID(filename, userName, batchID string) string {
	name := strings.TrimSpace(userName)
	if name == "" {
		name = derivedName(filename)
	}
	name = collapseUnderscores(replaceDisallowed(strings.ToLower(name)))

	prefix := tilesetPrefix
	if batchID != "" {
		short := batchID
		if len(short) > batchIDChars {
			short = short[:batchIDChars]
		}
		prefix = batchPrefix + short
	}
	stamp := s.now().Format(stampLayout)

	maxName := maxTilesetIDLength - len(prefix) - len(stamp) - 2
	if maxName < 0 {
		maxName = 0
	}
	if len(name) > maxName {
		name = name[:maxName]
	}

	id := keepAllowed(strings.ToLower(prefix + "_" + name + "_" + stamp))
	if len(id) > maxTilesetIDLength {
		id = id[:maxTilesetIDLength]
	}
	return strings.TrimRight(id, "_")
}

// derivedName strips the leading job id segment of a stored filename and keeps
// the first 20 identifier characters.
func derivedName(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if _, rest, found := strings.Cut(stem, "_"); found {
		stem = rest
	}
	var b strings.Builder
	for _, r := range stem {
		if isAlnum(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > maxDerivedNameLen {
		name = name[:maxDerivedNameLen]
	}
	if name == "" {
		return defaultTilesetName
	}
	return name
}

func replaceDisallowed(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isLowerAlnum(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func collapseUnderscores(s string) string {
	parts := strings.Split(s, "_")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}

func keepAllowed(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isLowerAlnum(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return isLowerAlnum(r) || (r >= 'A' && r <= 'Z')
}

func isLowerAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
