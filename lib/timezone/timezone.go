package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
}

// force timezone to be bgm.tv's because snapshot day buckets and air
// dates are compared against dates the site renders in its own zone,
// not whichever zone the machine running the cli happens to be in
func Now() time.Time {
	return time.Now().In(Location)
}
