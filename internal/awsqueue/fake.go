package awsqueue

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory stand-in for Client, shared by the
// queueregistry, router, and correlator test suites. It is safe for
// concurrent use.
type Fake struct {
	mu         sync.Mutex
	seq        int
	queues     map[string]string   // name -> url
	urlToName  map[string]string   // url -> name
	tags       map[string]map[string]string
	redrive    map[string]string // input url -> dlq arn
	messages   map[string][]fakeMessage
	deleted    map[string]bool
}

type fakeMessage struct {
	receiptHandle string
	body          string
}

func NewFake() *Fake {
	return &Fake{
		queues:    make(map[string]string),
		urlToName: make(map[string]string),
		tags:      make(map[string]map[string]string),
		redrive:   make(map[string]string),
		messages:  make(map[string][]fakeMessage),
		deleted:   make(map[string]bool),
	}
}

func (f *Fake) CreateQueue(_ context.Context, name string, tags map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url, ok := f.queues[name]; ok {
		return url, nil
	}
	f.seq++
	url := fmt.Sprintf("https://fake-sqs.local/%s-%d", name, f.seq)
	f.queues[name] = url
	f.urlToName[url] = name
	f.tags[url] = tags
	return url, nil
}

func (f *Fake) GetQueueURL(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queues[name], nil
}

func (f *Fake) DeleteQueue(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name, ok := f.urlToName[url]; ok {
		delete(f.queues, name)
	}
	delete(f.urlToName, url)
	delete(f.messages, url)
	f.deleted[url] = true
	return nil
}

func (f *Fake) SetRedrivePolicy(_ context.Context, inputURL, dlqArn string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redrive[inputURL] = dlqArn
	return nil
}

func (f *Fake) QueueARN(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.urlToName[url]
	return "arn:aws:sqs:fake:000000000000:" + name, nil
}

func (f *Fake) TagQueue(_ context.Context, url string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[url] = tags
	return nil
}

func (f *Fake) SendMessage(_ context.Context, url, body string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted[url] {
		return fmt.Errorf("fake: queue %s does not exist", url)
	}
	f.seq++
	f.messages[url] = append(f.messages[url], fakeMessage{
		receiptHandle: fmt.Sprintf("rh-%d", f.seq),
		body:          body,
	})
	return nil
}

func (f *Fake) ReceiveMessages(_ context.Context, url string, _, maxMessages int32) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := f.messages[url]
	if len(pending) == 0 {
		return nil, nil
	}
	n := int(maxMessages)
	if n <= 0 || n > len(pending) {
		n = len(pending)
	}
	batch := pending[:n]
	f.messages[url] = pending[n:]

	out := make([]Message, len(batch))
	for i, m := range batch {
		out[i] = Message{ReceiptHandle: m.receiptHandle, Body: m.body}
	}
	return out, nil
}

func (f *Fake) DeleteMessage(_ context.Context, url, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rest := f.messages[url][:0]
	for _, m := range f.messages[url] {
		if m.receiptHandle != receiptHandle {
			rest = append(rest, m)
		}
	}
	f.messages[url] = rest
	return nil
}

// Tags returns the tags recorded for a queue, for test assertions.
func (f *Fake) Tags(url string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags[url]
}

// QueueExists reports whether a queue by that name is currently live.
func (f *Fake) QueueExists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.queues[name]
	return ok
}
