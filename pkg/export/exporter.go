// Package export drives the conversion of a z-stack container into colorized
// PNG images: per channel, a maximum and an average intensity projection plus
// every individual slice, tinted with the channel's display color.
package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"czi2png/internal/models"
	"czi2png/pkg/czi"
	"czi2png/pkg/projection"
	"czi2png/pkg/render"
)

// Params holds the input parameters for a stack export.
type Params struct {
	// InputPath is the container file to convert
	InputPath string

	// OutputDir is the directory the images are written into
	OutputDir string

	// NumCores is how many channels are rendered in parallel (minimum 1)
	NumCores int

	// PNGCompression selects the encoder compression level:
	// "default", "fastest", "best" or "none"
	PNGCompression string

	// IncludeMIP enables the maximum intensity projection output
	IncludeMIP bool

	// IncludeAIP enables the average intensity projection output
	IncludeAIP bool

	// IncludeSlices enables the per-slice outputs
	IncludeSlices bool

	// Verbose enables step progress logging
	Verbose bool
}

// ChannelSummary captures the result of exporting one channel.
type ChannelSummary struct {
	// Index is the channel index within the stack
	Index int

	// Name is the sanitized name used in output filenames
	Name string

	// Color is the decoded display color of the channel
	Color render.Color

	// MinIntensity, MaxIntensity and MeanIntensity summarize the channel's
	// raw 8-bit samples across the full depth stack
	MinIntensity  float64
	MaxIntensity  float64
	MeanIntensity float64

	// FilesWritten is the number of images emitted for this channel
	FilesWritten int
}

// Metrics captures the metrics of one completed export run.
type Metrics struct {
	// Channels, Depth, Height and Width describe the decoded stack
	Channels int
	Depth    int
	Height   int
	Width    int

	// FilesWritten is the total number of images emitted
	FilesWritten int

	// ProcessingTime is the total wall-clock duration of the run
	ProcessingTime time.Duration

	// ChannelSummaries holds per-channel results in ascending channel order
	ChannelSummaries []ChannelSummary
}

// Exporter converts one container into a directory of PNG images.
type Exporter struct {
	params  Params
	metrics Metrics
	encoder png.Encoder

	// dirMayExist is set by the batch driver, which shares one pre-created
	// output directory across all inputs
	dirMayExist bool
}

// NewExporter creates a new exporter with the given parameters.
func NewExporter(params Params) *Exporter {
	return &Exporter{params: params}
}

// GetMetrics returns the metrics of the last completed run.
func (e *Exporter) GetMetrics() Metrics {
	return e.metrics
}

// Run performs the full export:
// 1. Prepare the output directory
// 2. Open the container and read its channel metadata
// 3. Decode the full image stack
// 4. Export projections and slices for every channel
// 5. Collect metrics
func (e *Exporter) Run() error {
	startTime := time.Now()

	level, err := pngCompressionLevel(e.params.PNGCompression)
	if err != nil {
		return err
	}
	e.encoder = png.Encoder{CompressionLevel: level}

	e.logf("Step 1: Preparing output directory %s", e.params.OutputDir)
	if err := e.createOutputDir(); err != nil {
		return err
	}

	e.logf("Step 2: Opening container %s", e.params.InputPath)
	file, err := czi.Open(e.params.InputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", e.params.InputPath, err)
	}
	defer file.Close()

	e.logf("Step 3: Decoding image stack")
	stack, err := file.DecodeStack()
	if err != nil {
		return fmt.Errorf("%s: %w", e.params.InputPath, err)
	}
	channels := file.Channels()
	e.logf("Decoded %d channels x %d slices of %dx%d pixels",
		stack.Channels, stack.Depth, stack.Width, stack.Height)

	e.logf("Step 4: Exporting %d channels", len(channels))
	summaries, err := e.exportChannels(stack, channels)
	if err != nil {
		return err
	}

	total := 0
	for _, s := range summaries {
		total += s.FilesWritten
	}
	e.metrics = Metrics{
		Channels:         stack.Channels,
		Depth:            stack.Depth,
		Height:           stack.Height,
		Width:            stack.Width,
		FilesWritten:     total,
		ProcessingTime:   time.Since(startTime),
		ChannelSummaries: summaries,
	}
	e.logf("Step 5: Export complete, %d files in %v", total, e.metrics.ProcessingTime)
	return nil
}

// createOutputDir creates the output directory. In single file mode an
// already existing directory is an error so a conversion can never mix with
// stale results.
func (e *Exporter) createOutputDir() error {
	if !e.dirMayExist {
		if _, err := os.Stat(e.params.OutputDir); err == nil {
			return fmt.Errorf("%w: %s", ErrOutputExists, e.params.OutputDir)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking output directory: %w", err)
		}
	}
	if err := os.MkdirAll(e.params.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}

// exportChannels renders every channel, sequentially by default or across a
// bounded worker pool when more cores are requested. Output bytes do not
// depend on the worker count since every image goes to a distinct filename.
func (e *Exporter) exportChannels(stack *models.Stack, channels []models.Channel) ([]ChannelSummary, error) {
	names := channelFileNames(channels)
	summaries := make([]ChannelSummary, len(channels))

	workers := e.params.NumCores
	if workers < 1 {
		workers = 1
	}
	if workers > len(channels) {
		workers = len(channels)
	}

	if workers == 1 {
		for i := range channels {
			summary, err := e.exportChannel(stack, channels[i], names[i])
			if err != nil {
				return nil, err
			}
			summaries[i] = summary
		}
		return summaries, nil
	}

	type result struct {
		index   int
		summary ChannelSummary
		err     error
	}

	jobs := make(chan int, len(channels))
	results := make(chan result, len(channels))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				summary, err := e.exportChannel(stack, channels[idx], names[idx])
				results <- result{index: idx, summary: summary, err: err}
			}
		}()
	}
	for i := range channels {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	var firstErr error
	firstIdx := len(channels)
	for r := range results {
		if r.err != nil {
			// Report the lowest-indexed failure so the error does not
			// depend on goroutine scheduling.
			if r.index < firstIdx {
				firstErr, firstIdx = r.err, r.index
			}
			continue
		}
		summaries[r.index] = r.summary
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return summaries, nil
}

// exportChannel writes the enabled outputs for a single channel and returns
// its summary.
func (e *Exporter) exportChannel(stack *models.Stack, ch models.Channel, name string) (ChannelSummary, error) {
	color, err := render.ParseHexColor(ch.Color)
	if err != nil {
		return ChannelSummary{}, fmt.Errorf("channel %d (%q): %w", ch.Index, ch.Name, err)
	}

	planes := stack.ChannelPlanes(ch.Index)
	summary := ChannelSummary{Index: ch.Index, Name: name, Color: color}
	summary.MinIntensity, summary.MaxIntensity, summary.MeanIntensity = channelIntensity(planes)

	base := baseName(e.params.InputPath)

	if e.params.IncludeMIP {
		mip, err := projection.Max(planes)
		if err != nil {
			return ChannelSummary{}, fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		img, err := render.Colorize(mip, stack.Width, stack.Height, color)
		if err != nil {
			return ChannelSummary{}, fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		if err := e.savePNG(img, fmt.Sprintf("%s_color_%s_mip.png", base, name)); err != nil {
			return ChannelSummary{}, err
		}
		summary.FilesWritten++
	}

	if e.params.IncludeAIP {
		aip, err := projection.Mean(planes)
		if err != nil {
			return ChannelSummary{}, fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		img, err := render.Colorize(aip, stack.Width, stack.Height, color)
		if err != nil {
			return ChannelSummary{}, fmt.Errorf("channel %d: %w", ch.Index, err)
		}
		if err := e.savePNG(img, fmt.Sprintf("%s_color_%s_aip.png", base, name)); err != nil {
			return ChannelSummary{}, err
		}
		summary.FilesWritten++
	}

	if e.params.IncludeSlices {
		for z := 0; z < stack.Depth; z++ {
			gray := render.Normalize(stack.Plane(ch.Index, z))
			img, err := render.Colorize(gray, stack.Width, stack.Height, color)
			if err != nil {
				return ChannelSummary{}, fmt.Errorf("channel %d slice %d: %w", ch.Index, z, err)
			}
			if err := e.savePNG(img, fmt.Sprintf("%s_color_%s_slice_%d.png", base, name, z)); err != nil {
				return ChannelSummary{}, err
			}
			summary.FilesWritten++
		}
	}

	e.logf("  Channel %d (%s): %d files, intensity min %.0f max %.0f mean %.2f",
		ch.Index, name, summary.FilesWritten,
		summary.MinIntensity, summary.MaxIntensity, summary.MeanIntensity)
	return summary, nil
}

// savePNG encodes img into the output directory under filename.
func (e *Exporter) savePNG(img image.Image, filename string) error {
	path := filepath.Join(e.params.OutputDir, filename)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := e.encoder.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (e *Exporter) logf(format string, args ...any) {
	if e.params.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// channelIntensity computes min, max and mean over a channel's raw 8-bit
// samples. Per-plane statistics are folded so the temporary float buffer
// stays one plane large.
func channelIntensity(planes [][]uint8) (min, max, mean float64) {
	tmp := make([]float64, len(planes[0]))
	mins := make([]float64, len(planes))
	maxs := make([]float64, len(planes))
	means := make([]float64, len(planes))
	for z, p := range planes {
		for i, v := range p {
			tmp[i] = float64(v)
		}
		mins[z] = floats.Min(tmp)
		maxs[z] = floats.Max(tmp)
		means[z] = stat.Mean(tmp, nil)
	}
	return floats.Min(mins), floats.Max(maxs), stat.Mean(means, nil)
}

// baseName strips the directory and extension from the input path;
// it prefixes every output filename.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// sanitizeName maps a channel display name onto the filename-safe alphabet,
// replacing every rune outside [A-Za-z0-9._-] with '_'.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// channelFileNames returns the filename component for each channel. Empty
// names fall back to ch<index>; a sanitized name already claimed by a lower
// channel gets _<index> appended until it is unique.
func channelFileNames(channels []models.Channel) []string {
	names := make([]string, len(channels))
	seen := make(map[string]bool, len(channels))
	for i, ch := range channels {
		name := sanitizeName(ch.Name)
		if name == "" {
			name = fmt.Sprintf("ch%d", ch.Index)
		}
		for seen[name] {
			name = fmt.Sprintf("%s_%d", name, ch.Index)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// pngCompressionLevel maps the configuration name onto the encoder setting.
func pngCompressionLevel(name string) (png.CompressionLevel, error) {
	switch name {
	case "", "default":
		return png.DefaultCompression, nil
	case "fastest":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none":
		return png.NoCompression, nil
	}
	return png.DefaultCompression, fmt.Errorf("unknown PNG compression level %q", name)
}
