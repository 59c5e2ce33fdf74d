package network

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flybeeper/trail-conflation/internal/models"
	"github.com/flybeeper/trail-conflation/pkg/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

var edgesHeader = []string{"id", "u", "v", "geometry"}

// Load returns the edge table of a zone. When cachePath exists it is read as
// the authoritative table so ids stay stable across runs; otherwise the table
// is built from the GeoJSON source and written to cachePath.
func Load(sourcePath, cachePath string, logger *utils.Logger) (*Table, error) {
	if cachePath != "" && utils.FileExists(cachePath) {
		f, err := os.Open(cachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open edge table: %w", err)
		}
		defer f.Close()

		table, err := ReadEdgesCSV(f)
		if err != nil {
			return nil, fmt.Errorf("malformed edge table %s: %w", cachePath, err)
		}
		logger.WithField("path", cachePath).WithField("edges", table.Len()).Info("Loaded network edge table")
		return table, nil
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read network source: %w", err)
	}
	raw, err := ParseGeoJSON(data)
	if err != nil {
		return nil, fmt.Errorf("malformed network source %s: %w", sourcePath, err)
	}
	table, err := BuildTable(raw)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := utils.WriteFileAtomic(cachePath, func(w io.Writer) error {
			return WriteEdgesCSV(w, table.Edges())
		}); err != nil {
			return nil, fmt.Errorf("failed to persist edge table: %w", err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"source":    filepath.Base(sourcePath),
		"features":  len(raw),
		"edges":     table.Len(),
		"duplicate": len(raw) - table.Len(),
	}).Info("Built network edge table")

	return table, nil
}

// ParseGeoJSON reads a FeatureCollection of LineString / MultiLineString
// features with numeric "u" and "v" properties.
func ParseGeoJSON(data []byte) ([]RawEdge, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	edges := make([]RawEdge, 0, len(fc.Features))
	for i, f := range fc.Features {
		u, err := propertyID(f.Properties, "u")
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		v, err := propertyID(f.Properties, "v")
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		var line orb.LineString
		switch g := f.Geometry.(type) {
		case orb.LineString:
			line = g
		case orb.MultiLineString:
			for _, part := range g {
				line = append(line, part...)
			}
		default:
			return nil, fmt.Errorf("feature %d: unsupported geometry %T", i, f.Geometry)
		}
		edges = append(edges, RawEdge{U: u, V: v, Geometry: line})
	}
	return edges, nil
}

func propertyID(props geojson.Properties, key string) (int64, error) {
	switch val := props[key].(type) {
	case float64:
		return int64(val), nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("property %q: %w", key, err)
		}
		return id, nil
	case nil:
		return 0, fmt.Errorf("missing property %q", key)
	default:
		return 0, fmt.Errorf("property %q has type %T", key, val)
	}
}

// WriteEdgesCSV writes id,u,v,geometry(WKT).
func WriteEdgesCSV(w io.Writer, edges []models.NetworkEdge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(edgesHeader); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.U, 10),
			strconv.FormatInt(e.V, 10),
			wkt.MarshalString(e.Geometry),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadEdgesCSV reads a table written by WriteEdgesCSV.
func ReadEdgesCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(edgesHeader, ",") {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var edges []models.NetworkEdge
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var e models.NetworkEdge
		if e.ID, err = strconv.ParseInt(rec[0], 10, 64); err != nil {
			return nil, fmt.Errorf("line %d: id: %w", line, err)
		}
		if e.U, err = strconv.ParseInt(rec[1], 10, 64); err != nil {
			return nil, fmt.Errorf("line %d: u: %w", line, err)
		}
		if e.V, err = strconv.ParseInt(rec[2], 10, 64); err != nil {
			return nil, fmt.Errorf("line %d: v: %w", line, err)
		}
		if e.Geometry, err = wkt.UnmarshalLineString(rec[3]); err != nil {
			return nil, fmt.Errorf("line %d: geometry: %w", line, err)
		}
		edges = append(edges, e)
	}

	return NewTable(edges)
}
