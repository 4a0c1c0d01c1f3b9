package topup

import (
	"strconv"
	"time"

	"gameshop/internal/database"
)

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func dbtestTxOptions() database.TxOptions {
	opts := database.DefaultTxOptions()
	opts.BaseBackoff = time.Millisecond
	return opts
}
