package engine

// ErrorPolicy selects what a Processor does with a line that fails to
// classify or render.
type ErrorPolicy string

const (
	// PolicySkip logs the failure and emits nothing for the line.
	PolicySkip ErrorPolicy = "skip"
	// PolicyInline emits "error: <message>" in place of the line.
	PolicyInline ErrorPolicy = "inline"
	// PolicyHalt stops processing and returns the error.
	PolicyHalt ErrorPolicy = "halt"
)

// Config holds all configuration options for a Processor.
type Config struct {
	// UnrecognizedMarker is written for lines whose markers match no known shape.
	UnrecognizedMarker string `json:"unrecognized_marker"`

	// ErrorPolicy decides how failed lines are handled.
	ErrorPolicy ErrorPolicy `json:"error_policy"`

	// MaxLineBytes caps the length of a single line read from a line source.
	MaxLineBytes int `json:"max_line_bytes"`

	// Workers bounds the goroutines used by RenderLines.
	Workers int `json:"workers"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		UnrecognizedMarker: "Unrecognized input",
		ErrorPolicy:        PolicySkip,
		MaxLineBytes:       64 * 1024,
		Workers:            4,
	}
}

// ParsePolicy maps a policy name to an ErrorPolicy. The boolean is false
// for unknown names.
func ParsePolicy(s string) (ErrorPolicy, bool) {
	switch p := ErrorPolicy(s); p {
	case PolicySkip, PolicyInline, PolicyHalt:
		return p, true
	}
	return "", false
}
