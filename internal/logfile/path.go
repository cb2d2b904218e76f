package logfile

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/pscheid92/imupulse/internal/domain"
)

const fileExtension = ".csv"

var sourceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SourcePath maps a logical data source name to its log file inside dir.
func SourcePath(dir, source string) (string, error) {
	if !sourceNamePattern.MatchString(source) {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownSource, source)
	}
	return filepath.Join(dir, source+fileExtension), nil
}
