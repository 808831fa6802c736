// Package version хранит сведения о сборке, которые подставляются через -ldflags:
//
//	-X github.com/sahaalaf/sashop/internal/version.version=v1.2.0
package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает текущую сборку.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает сведения о сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// Fields возвращает сведения о сборке для стартового лога.
func (b Build) Fields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "build_date": b.Date}
}
