package frontier

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rohmanhakim/pod-crawler/internal/domainlock"
	"github.com/rohmanhakim/pod-crawler/internal/kv"
	"github.com/rohmanhakim/pod-crawler/internal/parsequeue"
	"github.com/rohmanhakim/pod-crawler/internal/seenbloom"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/fileutil"
	"github.com/rohmanhakim/pod-crawler/pkg/hashutil"
	"github.com/rohmanhakim/pod-crawler/pkg/urlutil"
)

/*
Frontier manager.

The per-domain append-only file is the authoritative queue; the KV domain
record (frontier_offset, frontier_size, file_path) is an index into it.
Writers append bytes first and update frontier_size after the flush, so a
reader sees either the old size (and stops sooner) or the new size (and
complete new lines) — never a half-written line.

Writers hold the cross-process domain write-lock; readers within a process
are serialized by the local read table. Cross-process readers never contend
because a domain lives in exactly one pod.
*/

// maxPopAttempts bounds how many not-ready domains one GetNextURL call will
// cycle through before reporting empty.
const maxPopAttempts = 8

type Params struct {
	Client      redis.Cmdable
	Peers       map[int]redis.Cmdable // podID -> client; may include own pod
	Bloom       *seenbloom.SeenBloom
	WriterLock  *domainlock.WriterLock
	ReadTable   *domainlock.ReadTable
	FrontierDir string
	PodID       int
	PodCount    int
	MaxDepth    int
	Log         zerolog.Logger
}

type Frontier struct {
	client      redis.Cmdable
	peers       map[int]redis.Cmdable
	bloom       *seenbloom.SeenBloom
	writerLock  *domainlock.WriterLock
	readTable   *domainlock.ReadTable
	frontierDir string
	podID       int
	podCount    int
	maxDepth    int
	log         zerolog.Logger
	now         func() time.Time
}

func New(p Params) *Frontier {
	return &Frontier{
		client:      p.Client,
		peers:       p.Peers,
		bloom:       p.Bloom,
		writerLock:  p.WriterLock,
		readTable:   p.ReadTable,
		frontierDir: p.FrontierDir,
		podID:       p.PodID,
		podCount:    p.PodCount,
		maxDepth:    p.MaxDepth,
		log:         p.Log,
		now:         time.Now,
	}
}

// Initialize seeds this pod's frontier: only seeds whose domain hashes to
// this pod are inserted. Idempotent; with resume set it is a no-op when
// existing state is detected.
func (f *Frontier) Initialize(ctx context.Context, seeds []string, bloomCapacity int64, bloomErrorRate float64, resume bool) failure.ClassifiedError {
	if resume {
		exists, err := f.client.Exists(ctx, kv.SeenBloomKey).Result()
		if err != nil {
			return kv.Classify(err)
		}
		if exists > 0 {
			f.log.Info().Int("pod", f.podID).Msg("resume: existing frontier state detected, skipping seed initialization")
			return nil
		}
	}
	if err := f.bloom.Init(ctx, bloomCapacity, bloomErrorRate); err != nil {
		return err
	}

	owned := make([]string, 0, len(seeds))
	for _, raw := range seeds {
		url := urlutil.Normalize(raw)
		if url == "" {
			continue
		}
		domain := urlutil.ExtractDomain(url)
		if domain == "" || hashutil.Shard(domain, f.podCount) != f.podID {
			continue
		}
		owned = append(owned, url)
	}

	added, err := f.addLocal(ctx, owned, 0, true)
	if err != nil {
		return err
	}
	f.log.Info().Int("pod", f.podID).Int("seeds", added).Msg("frontier initialized")
	return nil
}

// AddURLsBatch routes each URL to its owning pod — appending locally owned
// URLs to their domain frontier files, pushing the rest onto the owning
// pods' ingress lists — and returns the count of URLs locally appended.
// URLs beyond the depth limit are dropped before any KV work.
func (f *Frontier) AddURLsBatch(ctx context.Context, urls []string, depth int) (int, failure.ClassifiedError) {
	if depth > f.maxDepth || len(urls) == 0 {
		return 0, nil
	}

	local := make([]string, 0, len(urls))
	remote := make(map[int][][]byte)
	for _, raw := range urls {
		url := urlutil.Normalize(raw)
		if url == "" {
			continue
		}
		domain := urlutil.ExtractDomain(url)
		if domain == "" {
			continue
		}
		pod := hashutil.Shard(domain, f.podCount)
		if pod == f.podID {
			local = append(local, url)
			continue
		}
		blob, err := parsequeue.EncodeIngress(parsequeue.IngressBlob{URL: url, Depth: depth})
		if err != nil {
			f.log.Error().Err(err).Str("url", url).Msg("ingress encode failed")
			continue
		}
		remote[pod] = append(remote[pod], blob)
	}

	for pod, blobs := range remote {
		peer, ok := f.peers[pod]
		if !ok {
			f.log.Error().Int("pod", pod).Int("urls", len(blobs)).Msg("no client for peer pod, dropping batch")
			continue
		}
		if err := parsequeue.PushIngress(ctx, peer, blobs); err != nil {
			f.log.Error().Err(err).Int("pod", pod).Msg("ingress push failed")
		}
	}

	return f.addLocal(ctx, local, depth, false)
}

// addLocal runs the local half of the insert pipeline: exclusion filter,
// bloom dedup, then per-domain locked appends.
func (f *Frontier) addLocal(ctx context.Context, urls []string, depth int, seeded bool) (int, failure.ClassifiedError) {
	if len(urls) == 0 {
		return 0, nil
	}

	urls, err := f.dropExcluded(ctx, urls)
	if err != nil {
		return 0, err
	}
	if len(urls) == 0 {
		return 0, nil
	}

	fresh, err := f.bloom.AddIfNew(ctx, urls)
	if err != nil {
		return 0, err
	}
	byDomain := make(map[string][]string)
	for i, url := range urls {
		if !fresh[i] {
			continue
		}
		domain := urlutil.ExtractDomain(url)
		byDomain[domain] = append(byDomain[domain], url)
	}

	added := 0
	for domain, domainURLs := range byDomain {
		n, err := f.appendDomain(ctx, domain, domainURLs, depth, seeded)
		if err != nil {
			f.log.Error().Err(err).Str("domain", domain).Msg("frontier append failed")
			continue
		}
		added += n
	}
	return added, nil
}

// dropExcluded filters out URLs whose domain is in the exclusion set.
func (f *Frontier) dropExcluded(ctx context.Context, urls []string) ([]string, failure.ClassifiedError) {
	domains := make(map[string]bool)
	for _, url := range urls {
		domains[urlutil.ExtractDomain(url)] = false
	}
	for domain := range domains {
		excluded, err := f.client.SIsMember(ctx, kv.ExcludedDomainsKey, domain).Result()
		if err != nil {
			return nil, kv.Classify(err)
		}
		domains[domain] = excluded
	}
	kept := urls[:0]
	for _, url := range urls {
		if !domains[urlutil.ExtractDomain(url)] {
			kept = append(kept, url)
		}
	}
	return kept, nil
}

// appendDomain holds the domain write-lock while appending lines and
// updating the KV index. A lock timeout is logged by the caller and the
// domain's URLs are reported as not added; a later batch retries.
func (f *Frontier) appendDomain(ctx context.Context, domain string, urls []string, depth int, seeded bool) (int, failure.ClassifiedError) {
	release, err := f.writerLock.Acquire(ctx, domain)
	if err != nil {
		return 0, err
	}
	defer release()

	var lines strings.Builder
	for _, url := range urls {
		lines.WriteString(url)
		lines.WriteByte('|')
		lines.WriteString(strconv.Itoa(depth))
		lines.WriteByte('\n')
	}

	rel := relFilePath(domain)
	newSize, appendErr := fileutil.AppendBytes(filepath.Join(f.frontierDir, rel), []byte(lines.String()))
	if appendErr != nil {
		return 0, appendErr
	}

	seededFlag := 0
	if seeded {
		seededFlag = 1
	}
	key := kv.DomainKey(domain)
	_, classified := kv.WithRetry(ctx, func() (interface{}, error) {
		cmds, err := f.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSetNX(ctx, key, kv.FieldFilePath, rel)
			pipe.HSetNX(ctx, key, kv.FieldFrontierOffset, 0)
			pipe.HSetNX(ctx, key, kv.FieldNextFetchTime, 0)
			pipe.HSetNX(ctx, key, kv.FieldIsExcluded, 0)
			pipe.HSetNX(ctx, key, kv.FieldIsSeeded, seededFlag)
			pipe.HSet(ctx, key, kv.FieldFrontierSize, newSize)
			pipe.RPush(ctx, kv.DomainsQueueKey, domain)
			return nil
		})
		return cmds, err
	})
	if classified != nil {
		return 0, classified
	}
	return len(urls), nil
}

// GetNextURL pops ready domains until one yields a URL, trying at most
// maxPopAttempts domains. A domain that is not yet eligible goes back to the
// queue tail; an excluded or exhausted domain is not re-enqueued. Returns
// nil when no ready URL was found within the attempt bound.
func (f *Frontier) GetNextURL(ctx context.Context) (*NextURL, failure.ClassifiedError) {
	for attempt := 0; attempt < maxPopAttempts; attempt++ {
		snap, err := kv.PopReadyDomain(ctx, f.client)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			return nil, nil
		}
		if snap.IsExcluded {
			continue
		}
		if f.now().Unix() < snap.NextFetchTime {
			if pushErr := f.client.RPush(ctx, kv.DomainsQueueKey, snap.Domain).Err(); pushErr != nil {
				return nil, kv.Classify(pushErr)
			}
			continue
		}
		if snap.FilePath == "" || snap.FrontierOffset >= snap.FrontierSize {
			continue
		}

		next, ok := f.readOne(ctx, snap.Domain)
		if ok {
			return next, nil
		}
	}
	return nil, nil
}

// readOne reads one line from the domain's frontier file under the
// process-local read lock, advancing frontier_offset and re-enqueueing the
// domain only when more URLs remain.
func (f *Frontier) readOne(ctx context.Context, domain string) (*NextURL, bool) {
	unlock := f.readTable.Lock(domain)
	defer unlock()

	key := kv.DomainKey(domain)
	fields, err := f.client.HMGet(ctx, key, kv.FieldFrontierOffset, kv.FieldFrontierSize, kv.FieldFilePath).Result()
	if err != nil || len(fields) != 3 {
		return nil, false
	}
	offset := fieldInt(fields[0])
	size := fieldInt(fields[1])
	rel, _ := fields[2].(string)
	if rel == "" || offset >= size {
		return nil, false
	}

	line, nextOffset, readErr := fileutil.ReadLineAt(filepath.Join(f.frontierDir, rel), offset, size)
	if readErr != nil {
		f.log.Error().Err(readErr).Str("domain", domain).Msg("frontier read failed")
		return nil, false
	}
	if line == "" {
		return nil, false
	}

	if err := f.client.HSet(ctx, key, kv.FieldFrontierOffset, nextOffset).Err(); err != nil {
		f.log.Error().Err(err).Str("domain", domain).Msg("frontier offset advance failed")
		return nil, false
	}
	if nextOffset < size {
		if err := f.client.RPush(ctx, kv.DomainsQueueKey, domain).Err(); err != nil {
			f.log.Error().Err(err).Str("domain", domain).Msg("domain requeue failed")
		}
	}

	url, depth, parseErr := parseLine(line)
	if parseErr != nil {
		f.log.Error().Err(parseErr).Str("domain", domain).Str("line", line).Msg("skipping malformed frontier line")
		return nil, false
	}
	return &NextURL{URL: url, Domain: domain, Depth: depth}, true
}

func parseLine(line string) (string, int, error) {
	sep := strings.LastIndexByte(line, '|')
	if sep <= 0 {
		return "", 0, &FrontierError{
			Message: fmt.Sprintf("no separator in %q", line),
			Cause:   ErrCauseMalformedLine,
		}
	}
	depth, err := strconv.Atoi(line[sep+1:])
	if err != nil {
		return "", 0, &FrontierError{
			Message: fmt.Sprintf("bad depth in %q", line),
			Cause:   ErrCauseMalformedLine,
		}
	}
	return line[:sep], depth, nil
}

func fieldInt(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
