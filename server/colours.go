package server

// ANSI escapes for the DEV console route table.
const (
	Red        = "\033[31m"
	Green      = "\033[32m"
	Yellow     = "\033[33m"
	Blue       = "\033[34m"
	Magenta    = "\033[35m"
	Cyan       = "\033[36m"
	Gray       = "\033[90m"
	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":     Green,
	"POST":    Blue,
	"PUT":     Cyan,
	"DELETE":  Yellow,
	"OPTIONS": Magenta,
}

// methodColor falls back to gray for routes registered without a method.
func methodColor(method string) string {
	if c, ok := methodColors[method]; ok {
		return c
	}
	return Gray
}

// statusColor groups responses by class: 2xx/3xx green, 4xx yellow, 5xx red.
func statusColor(status int) string {
	switch {
	case status >= 500:
		return Red
	case status >= 400:
		return Yellow
	default:
		return Green
	}
}
