package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// force timestamps into IST because the portal renders request dates in
// Indian government local time and our servers are not guaranteed to be there
func Now() time.Time {
	return time.Now().In(Location)
}
