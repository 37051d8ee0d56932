package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	blockfs "github.com/behrlich/go-blockfs"
	"github.com/behrlich/go-blockfs/device"
	"github.com/behrlich/go-blockfs/internal/logging"
)

func main() {
	var (
		sizeStr  = flag.String("size", "1M", "Size of the backing device (e.g., 512K, 1M, 1G)")
		blockStr = flag.String("block", "512", "Block size in bytes")
		image    = flag.String("image", "", "Back the volume with this image file instead of RAM")
		slice    = flag.String("slice", "", "Mount only a slice of the device, as start:end (negative values count from the end)")
		chain    = flag.Int("chain", 1, "Split the capacity across N chained sub-devices")
		verbose  = flag.Bool("v", false, "Verbose output")
		metrics  = flag.Bool("metrics", false, "Dump metrics as JSON on exit")
	)
	flag.Parse()

	size, err := parseSize(*sizeStr)
	if err != nil {
		log.Fatalf("Invalid size '%s': %v", *sizeStr, err)
	}
	blockSize, err := strconv.ParseInt(*blockStr, 10, 64)
	if err != nil {
		log.Fatalf("Invalid block size '%s': %v", *blockStr, err)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	// Assemble the block device stack
	dev, err := buildDevice(size, blockSize, *image, *slice, *chain)
	if err != nil {
		logger.Error("failed to build device", "error", err)
		os.Exit(1)
	}

	reg := blockfs.NewRegistry(&blockfs.RegistryOptions{Logger: logger})
	defer reg.Close()
	driver := blockfs.NewMockDriver(reg)

	logger.Info("formatting volume", "size", formatSize(size), "block_size", blockSize)
	if err := blockfs.Format(driver, reg, dev, 0); err != nil {
		logger.Error("format failed", "error", err)
		os.Exit(1)
	}

	fs := blockfs.NewFileSystem("demo", driver, reg)
	if err := fs.Mount(dev, true); err != nil {
		logger.Error("mount failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := fs.Unmount(); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	}()

	logger.Info("volume mounted", "volume", fs.VolumeID())

	if err := exercise(fs); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}

	if *metrics {
		snap := reg.Metrics().Snapshot()
		out, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Println(string(out))
	}
}

// buildDevice assembles the composition stack requested on the command line:
// a RAM or image-file base, optionally split into a chain, optionally sliced.
func buildDevice(size, blockSize int64, image, slice string, chain int) (blockfs.BlockDevice, error) {
	var dev blockfs.BlockDevice
	switch {
	case image != "":
		if err := ensureImage(image, size); err != nil {
			return nil, err
		}
		dev = device.NewFile(image, blockSize)
	case chain > 1:
		part := size / int64(chain) / blockSize * blockSize
		members := make([]blockfs.BlockDevice, chain)
		for i := range members {
			members[i] = device.NewMemory(part, blockSize)
		}
		dev = blockfs.NewChainingDevice(members)
	default:
		dev = device.NewMemory(size, blockSize)
	}

	if slice != "" {
		start, end, err := parseSlice(slice)
		if err != nil {
			return nil, err
		}
		dev = blockfs.NewSlicingDevice(dev, start, end)
	}
	return dev, nil
}

// ensureImage creates the image file at the requested size if it is missing.
func ensureImage(path string, size int64) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exercise runs a small format/write/read/enumerate round trip and prints
// what it finds.
func exercise(fs *blockfs.FileSystem) error {
	if err := fs.Mkdir("docs", 0755); err != nil {
		return err
	}

	f, err := fs.Open("docs/hello.txt", os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("hello from a composed block device\n"); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	f, err = fs.Open("docs/hello.txt", os.O_RDONLY)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return err
	}
	fmt.Printf("docs/hello.txt: %q\n", string(data))

	dir, err := fs.OpenDir("/")
	if err != nil {
		return err
	}
	defer dir.Close()
	entries, err := dir.ReadAll()
	if err != nil {
		return err
	}
	for _, fi := range entries {
		kind := "file"
		if fi.IsDir() {
			kind = "dir"
		}
		fmt.Printf("  %-4s %8d  %s\n", kind, fi.Size(), fi.Name())
	}
	return nil
}

// parseSlice parses a "start:end" pair of byte offsets.
func parseSlice(s string) (int64, int64, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("slice must be start:end, got %q", s)
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseSize parses a size string like "64M", "1G", "512K"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	if strings.HasSuffix(s, "K") {
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	} else if strings.HasSuffix(s, "M") {
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	} else if strings.HasSuffix(s, "G") {
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	} else {
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
