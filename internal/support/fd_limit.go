package support

// descriptorsPerWorker covers the probe socket plus the resolver and
// redirect connections a single worker may hold at once.
const descriptorsPerWorker = 3

// WorkersExceedDescriptorLimit reports whether the given pool size could
// exhaust the process descriptor limit. An unknown limit never exceeds.
func WorkersExceedDescriptorLimit(workers int, limit uint64) bool {
	if limit == 0 || workers <= 0 {
		return false
	}
	return uint64(workers)*descriptorsPerWorker >= limit
}
