package internal

import (
	// Registers the postgres and mysql database/sql drivers used by the sql and
	// riverqueue publisher drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
