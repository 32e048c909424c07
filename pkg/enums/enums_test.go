package enums

import "testing"

func TestParseProcessingStatus(t *testing.T) {
	got, err := ParseProcessingStatus("completed")
	if err != nil || got != ProcessingStatusCompleted {
		t.Fatalf("unexpected parse result %q err=%v", got, err)
	}
	if _, err := ParseProcessingStatus("done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if !ProcessingStatusFailed.IsTerminal() || ProcessingStatusProcessing.IsTerminal() {
		t.Fatalf("terminal classification is wrong")
	}
}

func TestParseBatchStatus(t *testing.T) {
	for _, raw := range []string{"processing", "partial", "completed", "failed"} {
		got, err := ParseBatchStatus(raw)
		if err != nil || !got.IsValid() {
			t.Fatalf("expected %q to parse, err=%v", raw, err)
		}
	}
	if _, err := ParseBatchStatus("queued"); err == nil {
		t.Fatalf("expected error for unknown batch status")
	}
}

func TestParseVisualizationType(t *testing.T) {
	cases := map[string]VisualizationType{
		"":              VisualizationTypeVector,
		"vector":        VisualizationTypeVector,
		" Raster-Array": VisualizationTypeRasterArray,
		"client-side":   VisualizationTypeClientSide,
	}
	for raw, want := range cases {
		got, err := ParseVisualizationType(raw)
		if err != nil || got != want {
			t.Fatalf("%q: expected %q got %q err=%v", raw, want, got, err)
		}
	}
	if _, err := ParseVisualizationType("heatmap"); err == nil {
		t.Fatalf("expected error for unknown visualization type")
	}
}

func TestVisualizationTypeFormatAndGrid(t *testing.T) {
	if VisualizationTypeRasterArray.RequestedFormat() != TilesetFormatRasterArray {
		t.Fatalf("raster-array should request raster-array")
	}
	if VisualizationTypeClientSide.RequestedFormat() != TilesetFormatVector {
		t.Fatalf("client-side should request vector")
	}
	if VisualizationTypeVector.WantsGrid() {
		t.Fatalf("vector mode should not build a grid")
	}
	if !VisualizationTypeClientSide.WantsGrid() || !VisualizationTypeRasterArray.WantsGrid() {
		t.Fatalf("animated modes should build a grid")
	}
}
