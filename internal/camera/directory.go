package camera

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/buildingco2/tracker/pkg/core"
)

// Directory replays the images in a directory in name order, looping when
// Loop is set. Used for bench tests of a camera setup without hardware.
type Directory struct {
	files []string
	size  Size
	loop  bool
	clock clock.Clock

	mu     sync.Mutex
	next   int
	seq    uint64
	closed bool
}

// NewDirectory lists the JPEG and PNG files in dir.
func NewDirectory(dir string, size Size, loop bool, clk clock.Clock) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	if clk == nil {
		clk = clock.New()
	}
	return &Directory{files: files, size: size.orDefault(), loop: loop, clock: clk}, nil
}

// Frame implements Source. Once the files run out without Loop, Frame
// returns io.EOF wrapped in an error.
func (d *Directory) Frame(ctx context.Context) (core.Frame, error) {
	if err := ctx.Err(); err != nil {
		return core.Frame{}, err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return core.Frame{}, ErrClosed
	}
	if d.next >= len(d.files) {
		if !d.loop {
			d.mu.Unlock()
			return core.Frame{}, fmt.Errorf("frame directory exhausted: %w", io.EOF)
		}
		d.next = 0
	}
	path := d.files[d.next]
	d.next++
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return core.Frame{}, fmt.Errorf("reading %s: %w", path, err)
	}
	data, err := normalize(raw, d.size)
	if err != nil {
		return core.Frame{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return core.Frame{
		Data:      data,
		Width:     d.size.Width,
		Height:    d.size.Height,
		Timestamp: d.clock.Now(),
		Seq:       seq,
	}, nil
}

// Close implements Source.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
