// Package geom maps raw detector hits into 3D coordinates. The x and y of a
// hit are its pixel position on the anode plane; z comes from the drift time
// of the ionization charge, converted through the drift velocity and the
// per-tile anode position and drift direction described by a tile layout file.
package geom

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// TileLayout describes the readout tiles of one detector module: which
// (io_group, io_channel) pairs each anode plane serves, where that plane sits
// along z, and which way charge drifts toward it.
type TileLayout struct {
	Tiles []Tile `yaml:"tiles"`
}

// Tile is one anode tile entry in the layout file. AnodeZ is the plane
// position in mm; DriftDir is +1 when drift distance increases z and −1 when
// it decreases z.
type Tile struct {
	IOGroup    uint8   `yaml:"io_group"`
	IOChannels []uint8 `yaml:"io_channels"`
	AnodeZ     float64 `yaml:"anode_z_mm"`
	DriftDir   float64 `yaml:"drift_direction"`
}

// LoadTileLayout parses a YAML tile layout file.
func LoadTileLayout(path string) (*TileLayout, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile layout: %w", err)
	}
	defer file.Close()

	layout, err := ParseTileLayout(file)
	if err != nil {
		return nil, fmt.Errorf("parse tile layout %s: %w", path, err)
	}
	return layout, nil
}

// ParseTileLayout parses a tile layout from an io.Reader and validates it.
func ParseTileLayout(r io.Reader) (*TileLayout, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var layout TileLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, err
	}

	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &layout, nil
}

// Validate checks the layout for structural errors: empty layout, tiles with
// no channels, drift directions other than ±1, and duplicate channel claims.
func (l *TileLayout) Validate() error {
	if len(l.Tiles) == 0 {
		return fmt.Errorf("tile layout has no tiles")
	}

	seen := make(map[[2]uint8]bool)
	for i, tile := range l.Tiles {
		if tile.IOGroup == 0 {
			return fmt.Errorf("tile %d: io_group must be non-zero", i)
		}
		if len(tile.IOChannels) == 0 {
			return fmt.Errorf("tile %d (io_group %d): no io_channels", i, tile.IOGroup)
		}
		if tile.DriftDir != 1 && tile.DriftDir != -1 {
			return fmt.Errorf("tile %d (io_group %d): drift_direction must be 1 or -1, got %v",
				i, tile.IOGroup, tile.DriftDir)
		}
		for _, ch := range tile.IOChannels {
			if ch == 0 {
				return fmt.Errorf("tile %d (io_group %d): io_channel must be non-zero", i, tile.IOGroup)
			}
			key := [2]uint8{tile.IOGroup, ch}
			if seen[key] {
				return fmt.Errorf("duplicate channel: io_group %d io_channel %d claimed twice",
					tile.IOGroup, ch)
			}
			seen[key] = true
		}
	}
	return nil
}
