package parsequeue

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rohmanhakim/pod-crawler/pkg/failure"
)

/*
Queue blob formats.

Fetch results and cross-pod URL discoveries travel through KV lists as
msgpack blobs: self-delimited, binary-safe (the parser always knows
content_bytes is bytes and text fields are strings), and compact enough for
raw HTML payloads. Field names are part of the on-queue contract; renaming
one is a wire change.
*/

// FetchBlob is one fetch result awaiting parsing on fetch:queue.
type FetchBlob struct {
	URL              string `msgpack:"url"`
	Domain           string `msgpack:"domain"`
	Depth            int    `msgpack:"depth"`
	ContentBytes     []byte `msgpack:"content_bytes,omitempty"`
	TextContent      string `msgpack:"text_content,omitempty"`
	ContentType      string `msgpack:"content_type"`
	CrawledTimestamp int64  `msgpack:"crawled_timestamp"`
	StatusCode       int    `msgpack:"status_code"`
	IsRedirect       bool   `msgpack:"is_redirect"`
	InitialURL       string `msgpack:"initial_url"`
}

// IngressBlob is one (url, depth) pair on another pod's ingress:urls list.
type IngressBlob struct {
	URL   string `msgpack:"url"`
	Depth int    `msgpack:"depth"`
}

func EncodeFetch(blob FetchBlob) ([]byte, failure.ClassifiedError) {
	data, err := msgpack.Marshal(blob)
	if err != nil {
		return nil, &QueueError{Message: err.Error(), Cause: ErrCauseEncode}
	}
	return data, nil
}

func DecodeFetch(data []byte) (FetchBlob, failure.ClassifiedError) {
	var blob FetchBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return FetchBlob{}, &QueueError{Message: err.Error(), Cause: ErrCauseDecode}
	}
	return blob, nil
}

func EncodeIngress(blob IngressBlob) ([]byte, failure.ClassifiedError) {
	data, err := msgpack.Marshal(blob)
	if err != nil {
		return nil, &QueueError{Message: err.Error(), Cause: ErrCauseEncode}
	}
	return data, nil
}

func DecodeIngress(data []byte) (IngressBlob, failure.ClassifiedError) {
	var blob IngressBlob
	if err := msgpack.Unmarshal(data, &blob); err != nil {
		return IngressBlob{}, &QueueError{Message: err.Error(), Cause: ErrCauseDecode}
	}
	return blob, nil
}
