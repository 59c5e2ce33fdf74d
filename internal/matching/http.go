package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/tidwall/gjson"
)

// HTTPMatcher calls an external map-matching service:
//
//	POST {"wkt": "LINESTRING(...)", "k": 2, "radius": 0.001, "gps_error": 0.001}
//	->   {"mgeom": "LINESTRING(...)", "pgeom": "LINESTRING(...)", "candidates": [{"u": 1, "v": 2}, ...]}
//
// pgeom holds one snapped point per input point; when it is absent the input
// point itself is kept. An empty mgeom means no match.
type HTTPMatcher struct {
	url    string
	client *http.Client
}

var _ NetworkMatcher = (*HTTPMatcher)(nil)

type matchRequest struct {
	WKT      string  `json:"wkt"`
	K        int     `json:"k"`
	Radius   float64 `json:"radius"`
	GPSError float64 `json:"gps_error"`
}

// NewHTTPMatcher creates a client for the service at url.
func NewHTTPMatcher(url string, timeout time.Duration) *HTTPMatcher {
	return &HTTPMatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements NetworkMatcher.
func (m *HTTPMatcher) Name() string {
	return "http"
}

// Match implements NetworkMatcher.
func (m *HTTPMatcher) Match(ctx context.Context, line orb.LineString, params Params) (*MatchedPath, error) {
	body, err := json.Marshal(matchRequest{
		WKT:      wkt.MarshalString(line),
		K:        params.K,
		Radius:   params.Radius,
		GPSError: params.GPSError,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matcher request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read matcher response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("matcher returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("matcher returned invalid JSON")
	}

	return parseMatchResponse(data, line)
}

func parseMatchResponse(data []byte, line orb.LineString) (*MatchedPath, error) {
	res := gjson.ParseBytes(data)

	geometry, err := parseLine(res.Get("mgeom").String())
	if err != nil {
		return nil, fmt.Errorf("mgeom: %w", err)
	}
	if len(geometry) == 0 {
		return &MatchedPath{}, nil
	}

	snapped, err := parseLine(res.Get("pgeom").String())
	if err != nil {
		return nil, fmt.Errorf("pgeom: %w", err)
	}

	candidates := res.Get("candidates").Array()
	path := &MatchedPath{
		Geometry: geometry,
		Points:   make([]MatchedPoint, len(candidates)),
	}
	for i, c := range candidates {
		p := MatchedPoint{U: c.Get("u").Int(), V: c.Get("v").Int()}
		switch {
		case i < len(snapped):
			p.Point = snapped[i]
		case i < len(line):
			p.Point = line[i]
		}
		path.Points[i] = p
	}
	return path, nil
}

func parseLine(s string) (orb.LineString, error) {
	if s == "" || strings.ReplaceAll(s, " ", "") == "LINESTRING()" {
		return nil, nil
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, err
	}
	switch v := g.(type) {
	case orb.LineString:
		return v, nil
	case orb.MultiLineString:
		var out orb.LineString
		for _, part := range v {
			out = append(out, part...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected geometry %T", g)
	}
}
