//go:build !linux

package affinity

// PinToCore is a no-op off Linux; affinity is best-effort and the crawl is
// correct without it.
func PinToCore(core int) error {
	return nil
}
