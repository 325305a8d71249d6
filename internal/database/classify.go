package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"graph-loader/internal/executor"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers that clear up on their own. Everything else is
// treated as permanent so a malformed batch cannot burn the retry budget.
var transientMySQLErrors = map[uint16]bool{
	1040: true, // ER_CON_COUNT_ERROR: too many connections
	1053: true, // ER_SERVER_SHUTDOWN
	1203: true, // ER_TOO_MANY_USER_CONNECTIONS
	1205: true, // ER_LOCK_WAIT_TIMEOUT
	1213: true, // ER_LOCK_DEADLOCK
	2006: true, // CR_SERVER_GONE_ERROR
	2013: true, // CR_SERVER_LOST
}

// classify wraps a sink error as transient or permanent for retry handling.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if transientMySQLErrors[myErr.Number] {
			return executor.Transient(err)
		}
		return executor.Permanent(err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return executor.Transient(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return executor.Transient(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return executor.Transient(err)
	}

	return executor.Permanent(err)
}
