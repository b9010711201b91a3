// Package problembank loads the static catalog of puzzle targets.
package problembank

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/playperu/geooracle/internal/geoguess"
)

// IndexFile is the catalog index inside the problem bank directory.
const IndexFile = "questions.json"

// AssetPrefix is the URL prefix under which catalog assets are served.
const AssetPrefix = "/problemBank"

// DefaultTarget is used when the catalog is empty.
var DefaultTarget = geoguess.Target{
	ID:         "default",
	Lat:        48.8566,
	Lon:        2.3522,
	Hint:       "Find Paris",
	Difficulty: "Easy",
}

// Bank is an immutable set of targets.
type Bank struct {
	targets []geoguess.Target
}

// New returns a bank over the given targets.
func New(targets []geoguess.Target) *Bank {
	return &Bank{targets: targets}
}

// Load reads dir/questions.json. A missing or malformed index yields an
// empty bank; invalid entries are skipped.
func Load(logger *slog.Logger, dir string) *Bank {
	path := filepath.Join(dir, IndexFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("problem bank index not found", "path", path)
		return New(nil)
	}
	if err != nil {
		logger.Error("reading problem bank", "path", path, "error", err)
		return New(nil)
	}

	targets, err := Parse(data)
	if err != nil {
		logger.Error("parsing problem bank", "path", path, "error", err)
		return New(nil)
	}
	logger.Info("loaded problem bank", "path", path, "problems", len(targets))
	return New(targets)
}

// Parse decodes a JSON list of raw problems, keeping the valid ones.
func Parse(data []byte) ([]geoguess.Target, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("problem bank must be a list: %w", err)
	}

	targets := make([]geoguess.Target, 0, len(raw))
	for _, r := range raw {
		if t, ok := normalize(r); ok {
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// Len reports the number of loaded targets.
func (b *Bank) Len() int { return len(b.targets) }

// Pick returns a uniformly random target, or DefaultTarget when empty.
func (b *Bank) Pick() geoguess.Target {
	if len(b.targets) == 0 {
		return DefaultTarget
	}
	return b.targets[rand.IntN(len(b.targets))]
}

type rawProblem struct {
	ID         any `json:"id"`
	ImageURL   any `json:"image_url"`
	Lat        any `json:"lat"`
	Lon        any `json:"lon"`
	Lng        any `json:"lng"`
	Hint       any `json:"hint"`
	Difficulty any `json:"difficulty"`
}

func normalize(data json.RawMessage) (geoguess.Target, bool) {
	var p rawProblem
	if err := json.Unmarshal(data, &p); err != nil {
		return geoguess.Target{}, false
	}

	image, ok := p.ImageURL.(string)
	if !ok || strings.TrimSpace(image) == "" {
		return geoguess.Target{}, false
	}

	lon := p.Lon
	if lon == nil {
		lon = p.Lng
	}
	lat, ok := toFloat(p.Lat)
	if !ok {
		return geoguess.Target{}, false
	}
	lonF, ok := toFloat(lon)
	if !ok {
		return geoguess.Target{}, false
	}
	if lat < -90 || lat > 90 || lonF < -180 || lonF > 180 {
		return geoguess.Target{}, false
	}

	t := geoguess.Target{
		Lat:        lat,
		Lon:        lonF,
		ImageURL:   AssetURL(image),
		Hint:       nonBlank(p.Hint),
		Difficulty: nonBlank(p.Difficulty),
	}
	if p.ID != nil {
		t.ID = fmt.Sprint(p.ID)
	}
	return t, true
}

// AssetURL maps a catalog image reference to a served URL. Absolute http(s)
// URLs pass through unchanged.
func AssetURL(image string) string {
	s := strings.TrimSpace(image)
	switch {
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return s
	case strings.HasPrefix(s, AssetPrefix+"/"):
		return s
	case strings.HasPrefix(s, "/"):
		return AssetPrefix + s
	default:
		return AssetPrefix + "/" + s
	}
}

// toFloat accepts JSON numbers and numeric strings. NaN and infinities are
// rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func nonBlank(v any) string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
