// Package artifact reads and deletes the result files that finished runs
// leave in the data root.
package artifact

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Ext is the extension of a result file.
const Ext = ".jtl"

// Store addresses result files as <root>/<reportID>.jtl.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore returns a Store rooted at root.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// FileName is the download name of a report's result file.
func FileName(reportID string) string {
	return reportID + Ext
}

// Path returns the on-disk location of a report's result file.
func (s *Store) Path(reportID string) string {
	return filepath.Join(s.root, FileName(reportID))
}

// Fetch reads the whole result file. Any failure yields an empty slice;
// callers treat zero length as "not available".
func (s *Store) Fetch(reportID string) []byte {
	if !validReportID(reportID) {
		s.logger.Warn("rejected artifact fetch", "report_id", reportID)
		return []byte{}
	}
	data, err := os.ReadFile(s.Path(reportID))
	if err != nil {
		s.logger.Error("failed to read artifact", "report_id", reportID, "error", err)
		return []byte{}
	}
	return data
}

// Delete removes the result file and reports whether it did so. A missing
// file is reported as false.
func (s *Store) Delete(reportID string) bool {
	if !validReportID(reportID) {
		s.logger.Warn("rejected artifact delete", "report_id", reportID)
		return false
	}
	if err := os.Remove(s.Path(reportID)); err != nil {
		s.logger.Error("failed to delete artifact", "report_id", reportID, "error", err)
		return false
	}
	return true
}

// validReportID keeps lookups inside the root directory.
func validReportID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}
