package affinity

import "github.com/shirou/gopsutil/v3/cpu"

// LogicalCores reports the host's logical core count, falling back to 0 on
// inventory failure (callers then skip the fit check).
func LogicalCores() int {
	count, err := cpu.Counts(true)
	if err != nil {
		return 0
	}
	return count
}

// CoreForProcess maps (pod, process index) to its pinned core: pod k owns
// cores [k*coresPerPod, (k+1)*coresPerPod); within a pod, fetcher i gets
// core i and parser j gets core fetchersPerPod+j.
func CoreForProcess(podID, coresPerPod, processIndex int) int {
	return podID*coresPerPod + processIndex
}
