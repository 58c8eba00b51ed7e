package geom

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleLayout = `
tiles:
  - io_group: 1
    io_channels: [1, 2, 3, 4]
    anode_z_mm: -304.31
    drift_direction: 1
  - io_group: 2
    io_channels: [1, 2, 3, 4]
    anode_z_mm: 304.31
    drift_direction: -1
`

func TestParseTileLayout(t *testing.T) {
	layout, err := ParseTileLayout(strings.NewReader(sampleLayout))
	if err != nil {
		t.Fatalf("ParseTileLayout failed: %v", err)
	}

	if len(layout.Tiles) != 2 {
		t.Fatalf("Expected 2 tiles, got %d", len(layout.Tiles))
	}

	first := layout.Tiles[0]
	if first.IOGroup != 1 {
		t.Errorf("Expected io_group 1, got %d", first.IOGroup)
	}
	if len(first.IOChannels) != 4 {
		t.Errorf("Expected 4 io_channels, got %d", len(first.IOChannels))
	}
	if first.AnodeZ != -304.31 {
		t.Errorf("Expected anode z -304.31, got %f", first.AnodeZ)
	}
	if first.DriftDir != 1 {
		t.Errorf("Expected drift direction 1, got %f", first.DriftDir)
	}

	second := layout.Tiles[1]
	if second.DriftDir != -1 {
		t.Errorf("Expected drift direction -1, got %f", second.DriftDir)
	}
}

func TestParseTileLayoutInvalidYAML(t *testing.T) {
	_, err := ParseTileLayout(strings.NewReader("tiles: [not closed"))
	if err == nil {
		t.Fatal("Expected error for malformed YAML, got nil")
	}
}

func TestTileLayoutValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no tiles",
			yaml: "tiles: []",
		},
		{
			name: "zero io_group",
			yaml: `
tiles:
  - io_group: 0
    io_channels: [1]
    anode_z_mm: 0
    drift_direction: 1
`,
		},
		{
			name: "empty io_channels",
			yaml: `
tiles:
  - io_group: 1
    io_channels: []
    anode_z_mm: 0
    drift_direction: 1
`,
		},
		{
			name: "zero io_channel",
			yaml: `
tiles:
  - io_group: 1
    io_channels: [0]
    anode_z_mm: 0
    drift_direction: 1
`,
		},
		{
			name: "bad drift direction",
			yaml: `
tiles:
  - io_group: 1
    io_channels: [1]
    anode_z_mm: 0
    drift_direction: 2
`,
		},
		{
			name: "duplicate channel across tiles",
			yaml: `
tiles:
  - io_group: 1
    io_channels: [1, 2]
    anode_z_mm: -10
    drift_direction: 1
  - io_group: 1
    io_channels: [2, 3]
    anode_z_mm: 10
    drift_direction: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTileLayout(strings.NewReader(tt.yaml))
			if err == nil {
				t.Errorf("Expected validation error for %q, got nil", tt.name)
			}
		})
	}
}

func TestLoadTileLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(path, []byte(sampleLayout), 0o644); err != nil {
		t.Fatalf("Failed to write layout file: %v", err)
	}

	layout, err := LoadTileLayout(path)
	if err != nil {
		t.Fatalf("LoadTileLayout failed: %v", err)
	}
	if len(layout.Tiles) != 2 {
		t.Errorf("Expected 2 tiles, got %d", len(layout.Tiles))
	}
}

func TestLoadTileLayoutMissingFile(t *testing.T) {
	_, err := LoadTileLayout(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing file, got nil")
	}
}
