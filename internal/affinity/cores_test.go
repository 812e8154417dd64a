package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoreForProcess(t *testing.T) {
	// pod k owns cores [k*(F+P), (k+1)*(F+P)); F=3, P=2
	coresPerPod := 5

	assert.Equal(t, 0, CoreForProcess(0, coresPerPod, 0)) // pod 0 fetcher 0
	assert.Equal(t, 2, CoreForProcess(0, coresPerPod, 2)) // pod 0 fetcher 2
	assert.Equal(t, 3, CoreForProcess(0, coresPerPod, 3)) // pod 0 parser 0
	assert.Equal(t, 5, CoreForProcess(1, coresPerPod, 0)) // pod 1 fetcher 0
	assert.Equal(t, 9, CoreForProcess(1, coresPerPod, 4)) // pod 1 parser 1
}
