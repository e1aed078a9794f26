package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nantokaworks/catstrip/internal/shared/logger"
	"go.uber.org/zap"
)

// Environment holds every process setting. Optional strings are pointers so
// "unset" and "empty" stay distinguishable.
type Environment struct {
	// Printer connection
	PrinterAddress *string // PRINTER_ADDRESS: BLE MAC, empty = scan
	PrinterName    *string // PRINTER_NAME: advertised name filter for scan
	DryRunMode     bool    // DRY_RUN_MODE: frames to stdout instead of BLE
	ConnectTimeout int     // BLE_CONNECT_TIMEOUT: seconds
	StabilizeWait  int     // BLE_STABILIZE_WAIT: ms to settle after connect
	ChunkSize      int     // BLE_CHUNK_SIZE: bytes per GATT write
	ChunkDelay     int     // BLE_CHUNK_DELAY: ms between chunks

	// Print behavior
	Energy    int // PRINTER_ENERGY: thermal energy 0..65535
	RowDelay  int // PRINT_ROW_DELAY: ms between bitmap rows
	FeedLines int // PRINT_FEED_LINES: paper feed after the job, 0..255
	GapLines  int // STRIP_GAP_LINES: blank rows between strips

	// Image processing defaults (flags override)
	Dither     string  // DITHER_MODE
	Threshold  int     // DITHER_THRESHOLD: 0..255
	Brightness float64 // IMAGE_BRIGHTNESS: -100..100
	Contrast   float64 // IMAGE_CONTRAST: -100..100
	Sharpen    float64 // IMAGE_SHARPEN: 0..100
	Gamma      float64 // IMAGE_GAMMA: 0.1..3.0
	Invert     bool    // IMAGE_INVERT

	// Strip splitting defaults
	StripOverlap   int  // STRIP_OVERLAP: px shared between adjacent strips
	StripMaxHeight int  // STRIP_MAX_HEIGHT: px, 0 = unlimited
	StripPadding   int  // STRIP_PADDING: white rows above/below each strip
	StripMarks     bool // STRIP_MARKS: draw alignment marks

	// Diagnostics
	DebugMode   bool   // DEBUG_MODE
	DebugOutput bool   // DEBUG_OUTPUT: save strip/assembly PNGs
	OutputDir   string // OUTPUT_DIR
}

var Value Environment

// LoadEnv reads .env (if present) and the process environment into Value.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	Value = Environment{
		PrinterAddress: lookupString("PRINTER_ADDRESS"),
		PrinterName:    lookupString("PRINTER_NAME"),
		DryRunMode:     getBool("DRY_RUN_MODE", false),
		ConnectTimeout: getInt("BLE_CONNECT_TIMEOUT", 15),
		StabilizeWait:  getInt("BLE_STABILIZE_WAIT", 500),
		ChunkSize:      getInt("BLE_CHUNK_SIZE", 200),
		ChunkDelay:     getInt("BLE_CHUNK_DELAY", 20),

		Energy:    getInt("PRINTER_ENERGY", 0x2EE0),
		RowDelay:  getInt("PRINT_ROW_DELAY", 15),
		FeedLines: getInt("PRINT_FEED_LINES", 72),
		GapLines:  getInt("STRIP_GAP_LINES", 12),

		Dither:     getString("DITHER_MODE", "floydsteinberg"),
		Threshold:  getInt("DITHER_THRESHOLD", 128),
		Brightness: getFloat("IMAGE_BRIGHTNESS", 0),
		Contrast:   getFloat("IMAGE_CONTRAST", 0),
		Sharpen:    getFloat("IMAGE_SHARPEN", 0),
		Gamma:      getFloat("IMAGE_GAMMA", 1.0),
		Invert:     getBool("IMAGE_INVERT", false),

		StripOverlap:   getInt("STRIP_OVERLAP", 0),
		StripMaxHeight: getInt("STRIP_MAX_HEIGHT", 0),
		StripPadding:   getInt("STRIP_PADDING", 0),
		StripMarks:     getBool("STRIP_MARKS", false),

		DebugMode:   getBool("DEBUG_MODE", false),
		DebugOutput: getBool("DEBUG_OUTPUT", false),
		OutputDir:   getString("OUTPUT_DIR", "./output"),
	}
}

func lookupString(key string) *string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return &v
	}
	return nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		logger.Warn("Invalid boolean environment value", zap.String("key", key), zap.String("value", v))
		return def
	}
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Invalid integer environment value", zap.String("key", key), zap.String("value", v))
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("Invalid float environment value", zap.String("key", key), zap.String("value", v))
		return def
	}
	return f
}
