// Package testing puts the staffline binaries in test mode when a test
// blank-imports it, so main packages can be exercised without Postgres or
// Redis.
package testing

import (
	"os"

	"github.com/staffline/staffline/internal/app"
)

// Developer shells often export these; entry point tests expect defaults.
var strayEnv = []string{"ROLE_SOURCE", "ROLE_TABLE_WATCH", "ROLE_TABLE_PATH"}

func init() {
	_ = os.Setenv(app.TestModeEnv, "true")
	for _, key := range strayEnv {
		_ = os.Unsetenv(key)
	}
	app.RefreshTestMode()
}
