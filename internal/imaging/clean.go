// Package imaging prepares theme reference images before they are
// passed to the renderer.
package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/bimg"
)

const (
	// topBandRatio is the slice cropped off the top, where reference
	// sheets carry their label band.
	topBandRatio = 0.18
	padPixels    = 20
)

// CleanReferenceImage crops the label band, trims leftover uniform
// borders, adds a padded margin and re-encodes as PNG. The result is
// written next to the source and reused while it is newer than the
// source.
func CleanReferenceImage(inputPath string) (string, error) {
	outputPath := cleanedPath(inputPath)

	srcInfo, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat reference image: %w", err)
	}
	if outInfo, err := os.Stat(outputPath); err == nil && !outInfo.ModTime().Before(srcInfo.ModTime()) {
		return outputPath, nil
	}

	buffer, err := bimg.Read(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to read reference image: %w", err)
	}

	size, err := bimg.NewImage(buffer).Size()
	if err != nil {
		return "", fmt.Errorf("failed to get image dimensions: %w", err)
	}

	bandHeight := int(float64(size.Height) * topBandRatio)
	cropped, err := bimg.NewImage(buffer).Extract(bandHeight, 0, size.Width, size.Height-bandHeight)
	if err != nil {
		return "", fmt.Errorf("failed to crop label band: %w", err)
	}

	// Trim barfs on images with nothing to trim; fall back to the crop.
	trimmed, err := bimg.NewImage(cropped).Trim()
	if err != nil {
		trimmed = cropped
	}

	trimmedSize, err := bimg.NewImage(trimmed).Size()
	if err != nil {
		return "", fmt.Errorf("failed to get trimmed dimensions: %w", err)
	}

	// Embed pads every band with zero, which reads as transparent once
	// the image carries an alpha channel.
	padded, err := bimg.NewImage(trimmed).Process(bimg.Options{
		Width:  trimmedSize.Width + 2*padPixels,
		Height: trimmedSize.Height + 2*padPixels,
		Embed:  true,
		Extend: bimg.ExtendBlack,
		Type:   bimg.PNG,
	})
	if err != nil {
		return "", fmt.Errorf("failed to pad reference image: %w", err)
	}

	if err := bimg.Write(outputPath, padded); err != nil {
		return "", fmt.Errorf("failed to write cleaned image: %w", err)
	}
	return outputPath, nil
}

func cleanedPath(inputPath string) string {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return base + "_clean.png"
}
