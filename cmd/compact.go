package cmd

import (
	"context"
	"fmt"
	"os"
)

// Compact compacts the local database to reclaim unused space
func Compact(ctx context.Context, g Globals) {
	env := Open(ctx, g)
	defer env.Close()

	path := env.Config.DBPath()

	// Get file size before
	info, err := os.Stat(path)
	if err != nil {
		env.Fail(err)
	}
	sizeBefore := info.Size()

	if err := env.Storage.Compact(); err != nil {
		env.Fail(err)
	}

	// Get file size after
	info, err = os.Stat(path)
	if err != nil {
		env.Fail(err)
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
