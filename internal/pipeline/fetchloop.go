package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/pod-crawler/internal/fetcher"
	"github.com/rohmanhakim/pod-crawler/internal/frontier"
	"github.com/rohmanhakim/pod-crawler/internal/parsequeue"
	"github.com/rohmanhakim/pod-crawler/internal/politeness"
	"github.com/rohmanhakim/pod-crawler/internal/storage"
	"github.com/rohmanhakim/pod-crawler/internal/telemetry"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/timeutil"
)

/*
Fetcher loop.

Each worker, forever: take the next ready URL from the frontier (which pops
a domain, applies politeness, and advances the domain's frontier offset),
check robots, fetch, stamp the domain's next-eligible-time, and hand HTML to
the parse queue. Non-HTML and failed fetches get their visited record
written here directly.

Workers observe shutdown at iteration boundaries: the current step finishes,
the next pop never happens.
*/

// idleSleep paces workers when no domain is ready; a small jitter keeps
// hundreds of workers from waking in lockstep.
const idleSleep = 250 * time.Millisecond

type FetchLoop struct {
	Frontier *frontier.Frontier
	Enforcer *politeness.Enforcer
	Fetcher  *fetcher.Fetcher
	Queue    *parsequeue.Queue
	Sink     *storage.Sink
	Counters *telemetry.Counters
	Workers  int
	Sleeper  timeutil.Sleeper
	Log      zerolog.Logger
}

// Run drives Workers concurrent fetch workers until ctx ends or a pod-fatal
// error surfaces.
func (l *FetchLoop) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < l.Workers; i++ {
		group.Go(func() error {
			return l.worker(groupCtx)
		})
	}
	err := group.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *FetchLoop) worker(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for ctx.Err() == nil {
		if l.Queue.AboveHard(ctx) {
			l.Queue.WaitUntilDrained(ctx)
			continue
		}

		next, err := l.Frontier.GetNextURL(ctx)
		if err != nil {
			if err.Severity() == failure.SeverityPodFatal {
				return err
			}
			l.Log.Error().Err(err).Msg("frontier pop failed")
			l.Sleeper.Sleep(ctx, idleSleep)
			continue
		}
		if next == nil {
			l.Sleeper.Sleep(ctx, idleSleep+time.Duration(rng.Int63n(int64(idleSleep))))
			continue
		}

		l.processOne(ctx, next)
	}
	return nil
}

func (l *FetchLoop) processOne(ctx context.Context, next *frontier.NextURL) {
	if !l.Enforcer.IsURLAllowed(ctx, next.URL) {
		record := storage.VisitedRecord{
			URL:       next.URL,
			FinalURL:  next.URL,
			Domain:    next.Domain,
			Status:    storage.StatusDisallowed,
			CrawledAt: time.Now(),
		}
		if excluded, _ := l.Enforcer.IsDomainExcluded(ctx, next.Domain); excluded {
			record.Status = storage.StatusExcluded
		}
		if err := l.Sink.RecordVisit(ctx, record); err != nil {
			l.Log.Error().Err(err).Str("url", next.URL).Msg("visited record write failed")
		}
		return
	}

	result := l.Fetcher.Fetch(ctx, next.URL)

	if err := l.Enforcer.RecordDomainFetchAttempt(ctx, next.Domain); err != nil {
		l.Log.Error().Err(err).Str("domain", next.Domain).Msg("next-fetch-time update failed")
	}

	l.Counters.PageCrawled(ctx)
	if result.ErrorTag != "" {
		l.Counters.FetchError(ctx, result.ErrorTag)
	}

	if result.ErrorTag != "" || !result.IsHTML() || !result.HasBody() {
		l.recordDirect(ctx, next, result)
		return
	}

	blob := parsequeue.FetchBlob{
		URL:              result.FinalURL,
		Domain:           next.Domain,
		Depth:            next.Depth,
		ContentBytes:     result.Body,
		TextContent:      result.Text,
		ContentType:      result.ContentType,
		CrawledTimestamp: time.Now().Unix(),
		StatusCode:       result.StatusCode,
		IsRedirect:       result.IsRedirect,
		InitialURL:       result.InitialURL,
	}
	encoded, encodeErr := parsequeue.EncodeFetch(blob)
	if encodeErr != nil {
		l.Log.Error().Err(encodeErr).Str("url", next.URL).Msg("fetch blob encode failed")
		l.recordDirect(ctx, next, result)
		return
	}
	if pushErr := l.Queue.Push(ctx, encoded); pushErr != nil {
		l.Log.Error().Err(pushErr).Str("url", next.URL).Msg("parse queue push failed")
	}
	if length, lenErr := l.Queue.Len(ctx); lenErr == nil {
		l.Counters.SetParseQueueLen(length)
	}
}

// recordDirect writes the visited record for results that skip the parser.
func (l *FetchLoop) recordDirect(ctx context.Context, next *frontier.NextURL, result fetcher.FetchResult) {
	status := storage.StatusOK
	if result.ErrorTag != "" {
		status = storage.StatusError
	}
	record := storage.VisitedRecord{
		URL:            result.InitialURL,
		FinalURL:       result.FinalURL,
		Domain:         next.Domain,
		Status:         status,
		StatusCode:     result.StatusCode,
		CrawledAt:      time.Now(),
		ContentType:    result.ContentType,
		ErrorTag:       result.ErrorTag,
		RedirectedFrom: redirectedFrom(result),
	}
	if err := l.Sink.RecordVisit(ctx, record); err != nil {
		l.Log.Error().Err(err).Str("url", next.URL).Msg("visited record write failed")
	}
}

func redirectedFrom(result fetcher.FetchResult) string {
	if result.IsRedirect {
		return result.InitialURL
	}
	return ""
}
