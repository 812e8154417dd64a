package frontier

import (
	"path/filepath"

	"github.com/rohmanhakim/pod-crawler/pkg/hashutil"
)

// NextURL is one frontier pop: the URL to fetch, its owning domain, and the
// depth it was discovered at.
type NextURL struct {
	URL    string
	Domain string
	Depth  int
}

// relFilePath is the domain's frontier file path relative to the pod's
// frontier directory: {first2hexOfMD5(domain)}/{domain}.frontier. The fan-out
// keeps any single directory from accumulating millions of entries.
func relFilePath(domain string) string {
	return filepath.Join(hashutil.MD5Prefix(domain), domain+".frontier")
}
