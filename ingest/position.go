package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidegrid/trajbatch/trackdb"
)

// Position is one AIS position report as it travels over the feed.
type Position struct {
	MMSI      string  `json:"mmsi"`
	Timestamp string  `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Sog       float64 `json:"sog"`
	Cog       float64 `json:"cog"`
}

// ParsePosition decodes and validates one feed message.
func ParsePosition(data []byte) (*Position, error) {
	var p Position
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	p.MMSI = strings.TrimSpace(p.MMSI)
	if p.MMSI == "" {
		return nil, fmt.Errorf("position without mmsi")
	}
	if strings.TrimSpace(p.Timestamp) == "" {
		return nil, fmt.Errorf("position %s: missing timestamp", p.MMSI)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return nil, fmt.Errorf("position %s: latitude %.4f out of range", p.MMSI, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return nil, fmt.Errorf("position %s: longitude %.4f out of range", p.MMSI, p.Lon)
	}
	return &p, nil
}

// Sample converts the position to the store's row form.
func (p *Position) Sample() trackdb.Sample {
	return trackdb.Sample{TS: p.Timestamp, Lat: p.Lat, Lon: p.Lon, Sog: p.Sog, Cog: p.Cog}
}
