package config

import (
	"fmt"
	"os"

	"github.com/flybeeper/trail-conflation/internal/models"
	"gopkg.in/yaml.v3"
)

// BuiltinZones зоны, доступные без ZONES_FILE
var BuiltinZones = map[string]models.Bounds{
	"canigo":      {LonMin: 2.2, LonMax: 2.7, LatMin: 42.4, LatMax: 42.6},
	"matagalls":   {LonMin: 2.3, LonMax: 2.5, LatMin: 41.8, LatMax: 41.9},
	"vallferrera": {LonMin: 1.2, LonMax: 1.7, LatMin: 42.5, LatMax: 42.8},
	"exemple":     {LonMin: 2.3, LonMax: 2.5, LatMin: 41.8, LatMax: 41.9},
}

// zonesFile формат YAML файла зон:
//
//	zones:
//	  montseny: {lon_min: 2.3, lon_max: 2.5, lat_min: 41.7, lat_max: 41.8}
type zonesFile struct {
	Zones map[string]models.Bounds `yaml:"zones"`
}

// LoadZones возвращает встроенные зоны, дополненные и переопределенные файлом path.
// Пустой path - только встроенные зоны
func LoadZones(path string) (map[string]models.Bounds, error) {
	zones := make(map[string]models.Bounds, len(BuiltinZones))
	for name, b := range BuiltinZones {
		zones[name] = b
	}
	if path == "" {
		return zones, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}
	return mergeZones(zones, data)
}

func mergeZones(zones map[string]models.Bounds, data []byte) (map[string]models.Bounds, error) {
	var file zonesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse zones file: %w", err)
	}
	for name, b := range file.Zones {
		if name == "" {
			return nil, fmt.Errorf("zone with empty name")
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("zone %s: %w", name, err)
		}
		zones[name] = b
	}
	return zones, nil
}
