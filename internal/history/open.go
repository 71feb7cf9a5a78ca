package history

import (
	"fmt"

	"chatlog-cli/internal/config"
)

// Open 按 driver 返回对应的数据源。
func Open(driver config.Driver, path string) (Source, error) {
	switch driver {
	case "", config.DriverJSONL:
		return NewFileSource(path)
	case config.DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
