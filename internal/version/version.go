// Package version хранит сведения о сборке, задаваемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build — сведения о сборке для логов и health-ответа.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает сведения о сборке одной структурой.
func Get() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// String — сведения о сборке одной строкой для -version.
func String() string {
	b := Get()
	return fmt.Sprintf("shiftlab-service version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}
