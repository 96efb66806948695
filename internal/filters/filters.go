// Package filters turns an untrusted client filter payload into the fixed
// parameter set the matcher understands.
//
// Normalization is total: every input, including missing or wrongly typed
// fields, yields a fully populated Filters value. Absent category filters mean
// "match all", absent bounds mean "unbounded", tolerances default to 0.
package filters

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotObject is returned by FromJSON when the payload is valid JSON but not an object.
var ErrNotObject = errors.New("filters must be a JSON object")

// Filters is the canonical form. Its JSON encoding is also the stored form on
// the job record, and normalizing that encoding again yields the same value.
type Filters struct {
	Materials   []string `json:"materials"`
	Movements   []string `json:"movements"`
	Confidences []string `json:"confidences"`

	PGAMin   *float64 `json:"pga_min"`
	PGAMax   *float64 `json:"pga_max"`
	PGVMin   *float64 `json:"pgv_min"`
	PGVMax   *float64 `json:"pgv_max"`
	PSA03Min *float64 `json:"psa03_min"`
	PSA03Max *float64 `json:"psa03_max"`
	MMIMin   *float64 `json:"mmi_min"`
	MMIMax   *float64 `json:"mmi_max"`
	RainMin  *float64 `json:"rain_min"`
	RainMax  *float64 `json:"rain_max"`

	TolPGA   float64 `json:"tol_pga"`
	TolPGV   float64 `json:"tol_pgv"`
	TolPSA03 float64 `json:"tol_psa03"`
	TolMMI   float64 `json:"tol_mmi"`
	TolRain  float64 `json:"tol_rain"`

	// SelectionGeoJSON is the selection shape in EPSG:4326, serialized. It is not
	// validated here; the matcher reprojects and rejects malformed shapes.
	SelectionGeoJSON *string `json:"selection_geojson"`
}

// Normalize maps an arbitrary decoded payload to canonical filters. Unknown keys are ignored.
func Normalize(raw map[string]any) Filters {
	return Filters{
		Materials:   set(raw["materials"]),
		Movements:   set(raw["movements"]),
		Confidences: set(raw["confidences"]),

		PGAMin:   bound(raw["pga_min"]),
		PGAMax:   bound(raw["pga_max"]),
		PGVMin:   bound(raw["pgv_min"]),
		PGVMax:   bound(raw["pgv_max"]),
		PSA03Min: bound(raw["psa03_min"]),
		PSA03Max: bound(raw["psa03_max"]),
		MMIMin:   bound(raw["mmi_min"]),
		MMIMax:   bound(raw["mmi_max"]),
		RainMin:  bound(raw["rain_min"]),
		RainMax:  bound(raw["rain_max"]),

		TolPGA:   tolerance(raw["tol_pga"]),
		TolPGV:   tolerance(raw["tol_pgv"]),
		TolPSA03: tolerance(raw["tol_psa03"]),
		TolMMI:   tolerance(raw["tol_mmi"]),
		TolRain:  tolerance(raw["tol_rain"]),

		SelectionGeoJSON: selection(raw["selection_geojson"]),
	}
}

// FromJSON decodes and normalizes a filter payload. Empty input and JSON null
// normalize to the defaults; any other non-object value is rejected.
func FromJSON(data []byte) (Filters, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Normalize(nil), nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Filters{}, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Filters{}, ErrNotObject
	}
	return Normalize(obj), nil
}

// Encode returns the stored form.
func (f Filters) Encode() (json.RawMessage, error) {
	return json.Marshal(f)
}

// set accepts a single value or a sequence and returns the distinct string
// values in first-seen order. It never returns nil.
func set(v any) []string {
	out := []string{}
	seen := map[string]struct{}{}

	add := func(item any) {
		s, ok := scalarString(item)
		if !ok {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch t := v.(type) {
	case nil:
	case []any:
		for _, item := range t {
			add(item)
		}
	case []string:
		for _, item := range t {
			add(item)
		}
	default:
		add(t)
	}
	return out
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// number coerces numeric and numeric-string input. Booleans, NaN and
// infinities are not numbers here: they cannot round-trip through JSON.
func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		p, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func bound(v any) *float64 {
	f, ok := number(v)
	if !ok {
		return nil
	}
	return &f
}

func tolerance(v any) float64 {
	f, ok := number(v)
	if !ok {
		return 0
	}
	return f
}

// selection carries the shape opaquely. Empty values mean "no selection";
// a string is assumed to be serialized GeoJSON already.
func selection(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return &t
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	case []any:
		if len(t) == 0 {
			return nil
		}
	case bool:
		if !t {
			return nil
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return nil
		}
	case float64:
		if t == 0 {
			return nil
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
