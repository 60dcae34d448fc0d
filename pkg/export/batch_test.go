package export

import (
	"os"
	"path/filepath"
	"testing"

	"czi2png/internal/czitest"
)

func singleChannelContainer(name, color string) czitest.Container {
	return czitest.Container{
		Width:  2,
		Height: 2,
		Planes: []czitest.Plane{{Data: []byte{0, 64, 128, 255}}},
		XML:    czitest.DisplayXML(czitest.Channel{Name: name, Color: color}),
	}
}

func TestExportDirectory(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "stacks")
	if err := os.Mkdir(in, 0755); err != nil {
		t.Fatalf("Failed to create input directory: %v", err)
	}

	writeContainer(t, in, "b.czi", singleChannelContainer("red", "#FFFF0000"))
	writeContainer(t, in, "a.czi", singleChannelContainer("green", "#FF00FF00"))
	// Upper-case extensions count, other files and directories do not
	writeContainer(t, in, "c.CZI", singleChannelContainer("blue", "#FF0000FF"))
	if err := os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write decoy file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(in, "nested.czi"), 0755); err != nil {
		t.Fatalf("Failed to create decoy directory: %v", err)
	}

	// Batch mode tolerates a pre-existing output directory
	out := filepath.Join(tmp, "out")
	if err := os.Mkdir(out, 0755); err != nil {
		t.Fatalf("Failed to create output directory: %v", err)
	}

	all, err := ExportDirectory(testParams(in, out))
	if err != nil {
		t.Fatalf("Batch export failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 converted containers, got %d", len(all))
	}

	// Single channel, single slice: mip + aip + slice apiece
	for _, name := range []string{
		"a_color_green_mip.png", "a_color_green_aip.png", "a_color_green_slice_0.png",
		"b_color_red_mip.png", "b_color_red_aip.png", "b_color_red_slice_0.png",
		"c_color_blue_mip.png", "c_color_blue_aip.png", "c_color_blue_slice_0.png",
	} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("Expected output file %s: %v", name, err)
		}
	}
}

func TestExportDirectoryFailsFast(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "stacks")
	if err := os.Mkdir(in, 0755); err != nil {
		t.Fatalf("Failed to create input directory: %v", err)
	}

	writeContainer(t, in, "a.czi", singleChannelContainer("red", "#FFFF0000"))
	corrupt := singleChannelContainer("red", "#FFFF0000").Bytes()
	corrupt[0] = 'X'
	if err := os.WriteFile(filepath.Join(in, "b.czi"), corrupt, 0644); err != nil {
		t.Fatalf("Failed to write corrupt container: %v", err)
	}
	writeContainer(t, in, "c.czi", singleChannelContainer("blue", "#FF0000FF"))

	out := filepath.Join(tmp, "out")
	all, err := ExportDirectory(testParams(in, out))
	if err == nil {
		t.Fatalf("Expected the corrupt container to fail the batch")
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 completed conversion before the failure, got %d", len(all))
	}
	// The file sorted after the corrupt one must not have been converted
	if _, err := os.Stat(filepath.Join(out, "c_color_blue_mip.png")); !os.IsNotExist(err) {
		t.Errorf("Expected conversion to stop before c.czi, stat returned %v", err)
	}
	// The file sorted before it must have been
	if _, err := os.Stat(filepath.Join(out, "a_color_red_mip.png")); err != nil {
		t.Errorf("Expected a.czi to be converted: %v", err)
	}
}

func TestExportDirectoryWithoutContainers(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "stacks")
	if err := os.Mkdir(in, 0755); err != nil {
		t.Fatalf("Failed to create input directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write decoy file: %v", err)
	}

	if _, err := ExportDirectory(testParams(in, filepath.Join(tmp, "out"))); err == nil {
		t.Errorf("Expected an error for a directory without containers")
	}
}
