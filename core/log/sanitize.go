// Package log provides secure logging utilities with data sanitization capabilities.
package log

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// SanitizationMode controls how sensitive data is handled in logs
type SanitizationMode int

const (
	// ProductionMode hashes sensitive data for production use
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated sensitive data for debugging
	DevelopmentMode
	// DebugMode shows full paths; secrets stay masked
	DebugMode
)

var currentMode = ProductionMode

func init() {
	if mode := os.Getenv("CLOUDBOX_LOG_MODE"); mode != "" {
		SetMode(ParseMode(mode))
	}
}

// ParseMode maps a mode name to a SanitizationMode, defaulting to production.
func ParseMode(name string) SanitizationMode {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	default:
		return ProductionMode
	}
}

// SetMode changes the process-wide sanitization mode
func SetMode(mode SanitizationMode) {
	currentMode = mode
}

// Mode returns the current sanitization mode
func Mode() SanitizationMode {
	return currentMode
}

// SanitizePath sanitizes file paths for logging based on the current mode
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	switch currentMode {
	case DevelopmentMode:
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	case DebugMode:
		return path
	default:
		// Hash the path to prevent leaking sensitive filenames
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	}
}

// SanitizeSecret masks tokens, keys and passwords. Only production mode
// hides the length.
func SanitizeSecret(secret string) string {
	if secret == "" {
		return ""
	}

	switch currentMode {
	case DevelopmentMode, DebugMode:
		if len(secret) <= 4 {
			return "****"
		}
		return secret[:2] + strings.Repeat("*", len(secret)-2)
	default:
		return "****"
	}
}

// SanitizeSize rounds sizes to the nearest KiB in production mode
func SanitizeSize(size int64) int64 {
	if currentMode == ProductionMode && size > 0 {
		return (size + 512) / 1024 * 1024
	}
	return size
}

// Path returns a zap field carrying a sanitized remote or local path
func Path(key, path string) zap.Field {
	return zap.String(key, SanitizePath(path))
}

// LogFields provides a structured way to handle sensitive logging fields
type LogFields struct {
	Path      string
	Provider  string
	Size      int64
	Operation string
}

// Sanitize returns sanitized versions of all fields
func (lf LogFields) Sanitize() LogFields {
	return LogFields{
		Path:      SanitizePath(lf.Path),
		Provider:  lf.Provider,
		Size:      SanitizeSize(lf.Size),
		Operation: lf.Operation,
	}
}

// Fields renders the sanitized fields for zap
func (lf LogFields) Fields() []zap.Field {
	s := lf.Sanitize()
	fields := []zap.Field{zap.String("operation", s.Operation)}
	if s.Provider != "" {
		fields = append(fields, zap.String("provider", s.Provider))
	}
	if s.Path != "" {
		fields = append(fields, zap.String("path", s.Path))
	}
	if lf.Size != 0 {
		fields = append(fields, zap.Int64("size", s.Size))
	}
	return fields
}
