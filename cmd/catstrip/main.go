package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/nantokaworks/catstrip/internal/dither"
	"github.com/nantokaworks/catstrip/internal/env"
	"github.com/nantokaworks/catstrip/internal/pipeline"
	"github.com/nantokaworks/catstrip/internal/printer"
	"github.com/nantokaworks/catstrip/internal/protocol"
	"github.com/nantokaworks/catstrip/internal/shared/logger"
	"github.com/nantokaworks/catstrip/internal/split"
	"github.com/nantokaworks/catstrip/internal/status"
	"github.com/nantokaworks/catstrip/internal/textimg"
	"github.com/nantokaworks/catstrip/internal/transport"
	"github.com/nantokaworks/catstrip/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger.Init(false)
	defer logger.Sync()

	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	var (
		// Inputs, exactly one.
		imagePath = flag.String("image", "", "path to a PNG/JPEG/GIF to print")
		text      = flag.String("text", "", "text to print")
		qrContent = flag.String("qr", "", "content to print as a QR code")

		// Text rendering.
		textSize = flag.Float64("text-size", 24, "text point size")
		textBold = flag.Bool("bold", false, "render text in bold")

		// Geometry before processing.
		rotate   = flag.Int("rotate", 0, "rotate input clockwise: 0, 90, 180 or 270")
		flipH    = flag.Bool("flip-h", false, "mirror input horizontally")
		flipV    = flag.Bool("flip-v", false, "mirror input vertically")
		cropSpec = flag.String("crop", "", "crop rectangle x,y,w,h (after rotation)")
		scale    = flag.Float64("scale", 0, "scale factor, 0 = keep size")
		strips   = flag.Int("strips", 0, "scale input to span this many strips")

		// Processing.
		brightness = flag.Float64("brightness", env.Value.Brightness, "brightness -100..100")
		contrast   = flag.Float64("contrast", env.Value.Contrast, "contrast -100..100")
		sharpen    = flag.Float64("sharpen", env.Value.Sharpen, "sharpen 0..100")
		gamma      = flag.Float64("gamma", env.Value.Gamma, "gamma 0.1..3.0")
		invert     = flag.Bool("invert", env.Value.Invert, "invert black and white")
		ditherName = flag.String("dither", env.Value.Dither, "dither mode: none, threshold, floydsteinberg, atkinson, ordered")
		threshold  = flag.Int("threshold", env.Value.Threshold, "dither threshold 0..255")

		// Strip layout.
		overlap   = flag.Int("overlap", env.Value.StripOverlap, "columns shared between adjacent strips")
		maxHeight = flag.Int("max-height", env.Value.StripMaxHeight, "rows per strip, 0 = unlimited")
		padding   = flag.Int("padding", env.Value.StripPadding, "white rows above and below each strip")
		marks     = flag.Bool("marks", env.Value.StripMarks, "draw alignment marks on multi-strip output")
		landscape = flag.Bool("landscape", false, "rotate 90° clockwise before the strip layout")

		// Device.
		address    = flag.String("address", stringOr(env.Value.PrinterAddress), "printer BLE address, empty = discover")
		doScan     = flag.Bool("scan", false, "list nearby printers and exit")
		dryRun     = flag.Bool("dry-run", env.Value.DryRunMode, "write frames to stdout instead of BLE")
		energy     = flag.Int("energy", env.Value.Energy, "thermal energy 0..65535")
		feed       = flag.Int("feed", env.Value.FeedLines, "paper feed lines after the job, 0..255")
		gap        = flag.Int("gap", env.Value.GapLines, "blank rows between strips")
		previewDir = flag.String("preview-dir", "", "save strip and assembly PNGs to this directory")

		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	topts := transportOptions()
	if *doScan {
		return runScan(topts)
	}

	src, err := loadInput(*imagePath, *text, *qrContent, *textSize, *textBold)
	if err != nil {
		logger.Error("Failed to load input", zap.Error(err))
		flag.Usage()
		return 1
	}

	src, err = applyGeometry(src, *rotate, *cropSpec, *flipH, *flipV, *scale, *strips)
	if err != nil {
		logger.Error("Failed to transform input", zap.Error(err))
		return 1
	}

	mode, err := dither.ParseMode(*ditherName)
	if err != nil {
		logger.Error("Unknown dither mode", zap.String("mode", *ditherName), zap.Error(err))
		return 1
	}
	proc := pipeline.DefaultOptions()
	proc.Brightness = *brightness
	proc.Contrast = *contrast
	proc.Sharpen = *sharpen
	proc.Gamma = *gamma
	proc.Invert = *invert
	proc.Dither = mode
	proc.Threshold = clampU8(*threshold)

	sopts := split.DefaultOptions()
	sopts.Overlap = *overlap
	sopts.MaxHeight = *maxHeight
	sopts.Padding = *padding
	sopts.AlignmentMarks = *marks
	sopts.Rotate = *landscape

	res, err := split.Split(src, sopts, proc)
	if err != nil {
		logger.Error("Failed to split image", zap.Error(err))
		return 1
	}
	logger.Info("Image prepared",
		zap.Int("strips", len(res.Strips)),
		zap.Int("cols", res.Cols),
		zap.Int("rows", res.Rows),
		zap.String("size", fmt.Sprintf("%.1fx%.1fcm", res.WidthCM(), res.HeightCM())))

	dir := *previewDir
	if dir == "" && env.Value.DebugOutput {
		dir = env.Value.OutputDir
	}
	if dir != "" {
		if err := savePreviews(res, dir); err != nil {
			logger.Error("Failed to save previews", zap.Error(err))
			return 1
		}
	}

	return runPrint(res, topts, *address, *dryRun, printer.Options{
		Energy:    uint16(clampInt(*energy, 0, 0xFFFF)),
		RowDelay:  time.Duration(env.Value.RowDelay) * time.Millisecond,
		FeedLines: uint8(clampInt(*feed, 0, 255)),
		GapLines:  *gap,
	})
}

func transportOptions() transport.Options {
	topts := transport.DefaultOptions()
	topts.ChunkSize = env.Value.ChunkSize
	topts.ChunkDelay = time.Duration(env.Value.ChunkDelay) * time.Millisecond
	topts.ConnectTimeout = time.Duration(env.Value.ConnectTimeout) * time.Second
	topts.StabilizeWait = time.Duration(env.Value.StabilizeWait) * time.Millisecond
	if env.Value.PrinterName != nil {
		topts.NameFilter = *env.Value.PrinterName
	}
	return topts
}

// loadInput decodes or renders the one requested source image.
func loadInput(imagePath, text, qrContent string, textSize float64, bold bool) (image.Image, error) {
	given := 0
	for _, s := range []string{imagePath, text, qrContent} {
		if s != "" {
			given++
		}
	}
	if given != 1 {
		return nil, fmt.Errorf("need exactly one of -image, -text or -qr")
	}

	switch {
	case imagePath != "":
		f, err := os.Open(imagePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, format, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", imagePath, err)
		}
		logger.Debug("Decoded input image",
			zap.String("path", imagePath),
			zap.String("format", format),
			zap.Int("width", img.Bounds().Dx()),
			zap.Int("height", img.Bounds().Dy()))
		return img, nil

	case text != "":
		topts := textimg.DefaultOptions()
		topts.PointSize = textSize
		topts.Bold = bold
		return textimg.Render(text, topts)

	default:
		qr, err := qrcode.New(qrContent, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("qr encode: %w", err)
		}
		return qr.Image(protocol.Width), nil
	}
}

// applyGeometry runs rotate/crop/flip first, then sizes the result either by
// the explicit scale factor or to span the requested strip count.
func applyGeometry(src image.Image, rotate int, cropSpec string, flipH, flipV bool, scale float64, strips int) (image.Image, error) {
	if rotate%90 != 0 || rotate < 0 || rotate > 270 {
		return nil, fmt.Errorf("rotate must be 0, 90, 180 or 270, got %d", rotate)
	}
	tr := pipeline.TransformOptions{
		RotateQuarters: rotate / 90,
		FlipH:          flipH,
		FlipV:          flipV,
	}
	if cropSpec != "" {
		rect, err := parseCrop(cropSpec)
		if err != nil {
			return nil, err
		}
		tr.Crop = &rect
	}
	out, err := pipeline.Transform(src, tr)
	if err != nil {
		return nil, err
	}

	if strips > 0 {
		if scale != 0 {
			logger.Warn("Both -scale and -strips given, -strips wins")
		}
		scale = split.ScaleForStrips(out.Bounds().Dx(), strips)
		logger.Debug("Scaling to strip count", zap.Int("strips", strips), zap.Float64("scale", scale))
	}
	if scale != 0 && scale != 1 {
		return pipeline.Transform(out, pipeline.TransformOptions{Scale: scale})
	}
	return out, nil
}

func parseCrop(spec string) (image.Rectangle, error) {
	var x, y, w, h int
	if _, err := fmt.Sscanf(spec, "%d,%d,%d,%d", &x, &y, &w, &h); err != nil {
		return image.Rectangle{}, fmt.Errorf("crop must be x,y,w,h: %w", err)
	}
	if w < 1 || h < 1 {
		return image.Rectangle{}, fmt.Errorf("crop size %dx%d is empty", w, h)
	}
	return image.Rect(x, y, x+w, y+h), nil
}

func savePreviews(res *split.Result, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, strip := range res.Strips {
		p := res.Order[i]
		path := filepath.Join(dir, fmt.Sprintf("strip_r%d_c%d.png", p.Row, p.Col))
		if err := savePNG(path, strip); err != nil {
			return err
		}
	}
	path := filepath.Join(dir, "assembly.png")
	if err := savePNG(path, split.Preview(res, 8, true)); err != nil {
		return err
	}
	logger.Info("Previews saved", zap.String("dir", dir), zap.Int("strips", len(res.Strips)))
	return nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

func runScan(topts transport.Options) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Scanning for printers...")
	devices, err := transport.Scan(ctx, topts)
	if err != nil {
		logger.Error("Scan failed", zap.Error(err))
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("no printers found")
		return 0
	}
	addrs := make([]string, 0, len(devices))
	for addr := range devices {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		fmt.Printf("%s  %s\n", addr, devices[addr])
	}
	return 0
}

func runPrint(res *split.Result, topts transport.Options, address string, dryRun bool, popts printer.Options) int {
	status.RegisterPrinterStatusChangeCallback(func(connected bool) {
		logger.Info("Printer connection changed", zap.Bool("connected", connected))
	})

	var dial transport.Dialer = transport.DialBLE
	if dryRun {
		logger.Info("Dry run, frames go to stdout")
		dial = transport.DialWriter(os.Stdout)
	}
	session := transport.NewSession(dial, topts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Warn("Interrupt received, aborting")
		cancel()
		<-sigChan
		logger.Error("Forced exit")
		os.Exit(1)
	}()

	if err := session.Connect(ctx, address); err != nil {
		logger.Error("Failed to connect printer", zap.Error(err))
		return 1
	}
	defer session.Disconnect()

	p := printer.New(session)
	started := time.Now()
	ch, err := p.PrintStrips(ctx, res.Strips, popts)
	if err != nil {
		logger.Error("Failed to start print", zap.Error(err))
		return 1
	}

	lastPhase := printer.Phase(-1)
	for pr := range ch {
		if pr.Phase != lastPhase {
			lastPhase = pr.Phase
			logger.Info("Print phase", zap.String("phase", pr.Phase.String()), zap.Int("percent", pr.Percent))
		} else {
			logger.Debug("Print progress",
				zap.Int("percent", pr.Percent),
				zap.Int("row", pr.CurrentRow),
				zap.Int("rows", pr.TotalRows))
		}
		if pr.Phase == printer.PhaseError {
			logger.Error("Print failed", zap.Error(pr.Err))
			return 1
		}
	}

	logger.Info("Print complete", zap.Duration("took", time.Since(started)))
	return 0
}

func stringOr(p *string) string {
	if p != nil {
		return *p
	}
	return ""
}

func clampU8(v int) uint8 {
	return uint8(clampInt(v, 0, 255))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
