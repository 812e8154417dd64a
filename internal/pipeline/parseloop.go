package pipeline

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/pod-crawler/internal/frontier"
	"github.com/rohmanhakim/pod-crawler/internal/parsequeue"
	"github.com/rohmanhakim/pod-crawler/internal/parser"
	"github.com/rohmanhakim/pod-crawler/internal/storage"
	"github.com/rohmanhakim/pod-crawler/internal/telemetry"
	"github.com/rohmanhakim/pod-crawler/pkg/failure"
	"github.com/rohmanhakim/pod-crawler/pkg/timeutil"
)

/*
Parser loop.

Each worker, forever: pop one fetch blob, extract text and links, persist
the text, route discovered links to their owning pods through the frontier,
and write the visited record. A parse failure still writes the record —
with empty text — and whatever links were salvageable.
*/

type ParseLoop struct {
	Queue    *parsequeue.Queue
	Frontier *frontier.Frontier
	Sink     *storage.Sink
	Counters *telemetry.Counters
	Workers  int
	Log      zerolog.Logger
}

func (l *ParseLoop) Run(ctx context.Context) error {
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

func (l *ParseLoop) worker(ctx context.Context) error {
	for ctx.Err() == nil {
		data, err := l.Queue.Pop(ctx)
		if err != nil {
			if err.Severity() == failure.SeverityPodFatal {
				return err
			}
			continue
		}
		if data == nil {
			// BLPOP timeout; nothing queued
			continue
		}
		l.processOne(ctx, data)
	}
	return nil
}

func (l *ParseLoop) processOne(ctx context.Context, data []byte) {
	blob, err := parsequeue.DecodeFetch(data)
	if err != nil {
		l.Counters.ParseError(ctx)
		l.Log.Error().Err(err).Msg("dropping undecodable fetch blob")
		return
	}

	htmlContent := blob.TextContent
	if htmlContent == "" && len(blob.ContentBytes) > 0 {
		htmlContent = string(blob.ContentBytes)
	}
	result := parser.Parse(htmlContent, blob.URL)

	record := storage.VisitedRecord{
		URL:            blob.InitialURL,
		FinalURL:       blob.URL,
		Domain:         blob.Domain,
		Status:         storage.StatusOK,
		StatusCode:     blob.StatusCode,
		CrawledAt:      time.Unix(blob.CrawledTimestamp, 0),
		ContentType:    blob.ContentType,
		RedirectedFrom: redirectedFromBlob(blob),
	}

	if result.Text != "" {
		record.ContentHash = storage.ContentHash(result.Text)
		record.ContentPath = l.Sink.SaveText(blob.URL, result.Text)
	}

	if len(result.Links) > 0 {
		added, addErr := l.Frontier.AddURLsBatch(ctx, result.Links, blob.Depth+1)
		if addErr != nil {
			l.Log.Error().Err(addErr).Str("url", blob.URL).Msg("link enqueue failed")
		}
		l.Counters.URLsAdded(ctx, added)
	}

	if err := l.Sink.RecordVisit(ctx, record); err != nil {
		l.Log.Error().Err(err).Str("url", blob.URL).Msg("visited record write failed")
	}
}

func redirectedFromBlob(blob parsequeue.FetchBlob) string {
	if blob.IsRedirect {
		return blob.InitialURL
	}
	return ""
}

/*
Ingress drainer.

A lightweight loop that batches this pod's ingress:urls inbox into local
frontier inserts, decoupling cross-pod writes from the parser critical path.
*/

const (
	ingressBatchSize = 256
	ingressIdleSleep = 500 * time.Millisecond
)

type IngressLoop struct {
	Client   redis.Cmdable
	Frontier *frontier.Frontier
	Counters *telemetry.Counters
	Sleeper  timeutil.Sleeper
	Log      zerolog.Logger
}

func (l *IngressLoop) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		blobs, err := parsequeue.PopIngressBatch(ctx, l.Client, ingressBatchSize)
		if err != nil {
			if err.Severity() == failure.SeverityPodFatal {
				return err
			}
			l.Sleeper.Sleep(ctx, ingressIdleSleep)
			continue
		}
		if len(blobs) == 0 {
			l.Sleeper.Sleep(ctx, ingressIdleSleep)
			continue
		}

		// group by depth so each AddURLsBatch call carries one depth
		byDepth := make(map[int][]string)
		for _, raw := range blobs {
			blob, decodeErr := parsequeue.DecodeIngress(raw)
			if decodeErr != nil {
				l.Log.Error().Err(decodeErr).Msg("dropping undecodable ingress blob")
				continue
			}
			byDepth[blob.Depth] = append(byDepth[blob.Depth], blob.URL)
		}
		for depth, urls := range byDepth {
			added, addErr := l.Frontier.AddURLsBatch(ctx, urls, depth)
			if addErr != nil {
				l.Log.Error().Err(addErr).Int("depth", depth).Msg("ingress insert failed")
				continue
			}
			l.Counters.URLsAdded(ctx, added)
		}
	}
	return nil
}
