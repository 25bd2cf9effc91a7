package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderCommand(t *testing.T) {
	resetFlags()
	renderWidth = 640
	renderOutput = filepath.Join(t.TempDir(), "qemu.png")

	path := writeMap(t, "qemu.map", qemuMap)
	output, err := captureOutput(t, func() error {
		return runRender([]string{path})
	})
	require.NoError(t, err)
	assertContains(t, output, []string{"Wrote ", "qemu.png"})

	f, err := os.Open(renderOutput)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 640, img.Bounds().Dx())
}

func TestRenderCommand_TooNarrow(t *testing.T) {
	resetFlags()
	renderWidth = 8
	renderOutput = filepath.Join(t.TempDir(), "narrow.png")

	path := writeMap(t, "qemu.map", qemuMap)
	_, err := captureOutput(t, func() error {
		return runRender([]string{path})
	})
	require.ErrorContains(t, err, "too small")
	_, statErr := os.Stat(renderOutput)
	require.True(t, os.IsNotExist(statErr))
}
