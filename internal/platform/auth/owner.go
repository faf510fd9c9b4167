package auth

// Owned is implemented by every record whose access is restricted to the
// doctor that created it.
type Owned interface {
	OwnerUID() string
}

// Owns reports whether caller may read or modify record. An empty caller
// owns nothing.
func Owns(caller string, record Owned) bool {
	if caller == "" || record == nil {
		return false
	}
	return record.OwnerUID() == caller
}
