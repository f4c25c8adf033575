package timezone

import (
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
}

// the portal publishes results on Beijing time, keep timestamps in that
// zone regardless of where the poller is scheduled
func Now() time.Time {
	return time.Now().In(Location)
}
