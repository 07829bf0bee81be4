package questdb

import (
	"os"
	"regexp"
	"strings"
	"sync"
)

const testPrefix = "test_"

var (
	testModeOnce sync.Once
	testMode     bool
)

// TestMode reports whether the test-mode table prefix is active.
// It is toggled by NODE_ENV=test (the flag name is kept for compatibility
// with the dashboards that share the store).
func TestMode() bool {
	testModeOnce.Do(func() {
		testMode = os.Getenv("NODE_ENV") == "test"
	})
	return testMode
}

// SetTestMode overrides test mode, for tests of the prefix logic itself.
func SetTestMode(on bool) {
	testModeOnce.Do(func() {})
	testMode = on
}

// TableName returns the physical table name for base. In test mode the
// name gains a "test_" prefix; the function is idempotent when the prefix
// is already present.
func TableName(base string) string {
	if !TestMode() {
		return base
	}
	if strings.HasPrefix(base, testPrefix) {
		return base
	}
	return testPrefix + base
}

var tableNamePattern = regexp.MustCompile(`\b(` + strings.Join(productionTables, "|") + `)\b`)

// qualifySchema rewrites base table names in a schema statement to their
// physical names. A no-op outside test mode.
func qualifySchema(stmt string) string {
	if !TestMode() {
		return stmt
	}
	return tableNamePattern.ReplaceAllStringFunc(stmt, TableName)
}
