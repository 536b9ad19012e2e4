package redis

import "fmt"

const ns = "parkgo:v1"

func KeyLocation(locationID int64) string {
	return fmt.Sprintf("%s:parking:%d", ns, locationID)
}

func KeyLocationAvailability(locationID int64) string {
	return fmt.Sprintf("%s:parking:%d:availability", ns, locationID)
}

// KeySearch keys a cached search page by a digest of its normalized filter.
func KeySearch(digest string) string {
	return fmt.Sprintf("%s:search:%s", ns, digest)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeySweeperLock() string {
	return ns + ":lock:sweeper"
}

func ChannelLocationsChanged() string {
	return ns + ":parkings:changed"
}
