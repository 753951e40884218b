package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// Quantizations in preference order; the first match among an entry's
// artifact files wins.
var preferredQuantizations = []string{"Q4_K_M", "Q5_K_M", "Q4_0", "Q5_0"}

// Bytes-per-parameter multipliers per quantization scheme, applied as
// params * multiplier * 1024^3 / 8.
var sizeMultipliers = map[string]float64{
	"Q2_K":   0.28,
	"Q3_K_M": 0.38,
	"Q3_K_S": 0.36,
	"Q4_0":   0.5,
	"Q4_K_M": 0.52,
	"Q4_K_S": 0.5,
	"Q5_0":   0.62,
	"Q5_K_M": 0.64,
	"Q5_K_S": 0.62,
	"Q6_K":   0.75,
	"Q8_0":   1.0,
	"F16":    2.0,
	"F32":    4.0,
}

const defaultSizeMultiplier = 0.52 // Q4_K_M

var (
	quantPattern = regexp.MustCompile(`(?i)\.(Q[0-9]_[KM][_A-Z]*|q[0-9]_[km][_a-z]*)\.gguf$`)
	paramPattern = regexp.MustCompile(`(\d+\.?\d*)[bB]`)
)

// extractQuantization pulls the quantization label out of a GGUF filename,
// or "" when the filename does not encode one.
func extractQuantization(filename string) string {
	m := quantPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// selectBestQuantization picks the most-preferred artifact, falling back to
// whichever was found first (deterministic given stable remote ordering).
func selectBestQuantization(files []ggufFile) (ggufFile, bool) {
	for _, quant := range preferredQuantizations {
		for _, f := range files {
			if f.Quantization == quant {
				return f, true
			}
		}
	}
	if len(files) > 0 {
		return files[0], true
	}
	return ggufFile{}, false
}

// extractModelParams guesses the parameter count from the model id, then
// its tags, then known name patterns. Defaults to 2B.
func extractModelParams(modelID string, tags []string) float64 {
	if m := paramPattern.FindStringSubmatch(modelID); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v * 1e9
		}
	}
	for _, tag := range tags {
		if m := paramPattern.FindStringSubmatch(tag); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v * 1e9
			}
		}
	}
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "tinyllama") || strings.Contains(lower, "1.1b"):
		return 1.1e9
	case strings.Contains(lower, "phi-2") || strings.Contains(lower, "2.7b"):
		return 2.7e9
	case strings.Contains(lower, "gemma-2b"):
		return 2e9
	case strings.Contains(lower, "qwen-1.8b"):
		return 1.8e9
	case strings.Contains(lower, "3b"):
		return 3e9
	case strings.Contains(lower, "7b"):
		return 7e9
	case strings.Contains(lower, "13b"):
		return 13e9
	}
	return 2e9
}

// estimateModelSize converts a parameter count and quantization into bytes.
func estimateModelSize(params float64, quantization string) int64 {
	mult, ok := sizeMultipliers[quantization]
	if !ok {
		mult = defaultSizeMultiplier
	}
	return int64(params * mult * 1024 * 1024 * 1024 / 8)
}

// estimateContextSize guesses a context window from architecture tags.
func estimateContextSize(tags []string) int {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), "qwen") {
			return 32768
		}
	}
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), "mistral") {
			return 8192
		}
	}
	return 4096
}

// displayName turns "org/Some-Model-7B" into "Some Model 7B".
func displayName(modelID string) string {
	parts := strings.Split(modelID, "/")
	name := parts[len(parts)-1]
	name = strings.ReplaceAll(name, "-", " ")
	return strings.ReplaceAll(name, "_", " ")
}

// architectureLabel returns the capitalized architecture tag, or "Unknown".
func architectureLabel(tags []string, architectures []string) string {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		for _, arch := range architectures {
			if lower == arch {
				return strings.ToUpper(arch[:1]) + arch[1:]
			}
		}
	}
	return "Unknown"
}
