package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeRunner struct {
	instanceIDs []uint
	err         error
}

func (f *fakeRunner) Run(_ context.Context, instanceID uint) error {
	f.instanceIDs = append(f.instanceIDs, instanceID)
	return f.err
}

type fakeInvalidator struct {
	collections []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, collection string) error {
	f.collections = append(f.collections, collection)
	return nil
}

func testWorker(runner *fakeRunner, inv *fakeInvalidator) *IngestWorker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIngestWorker(nil, runner, inv, "test.queue", logger)
}

func Test_Handle_RunsJobAndInvalidatesCache(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	inv := &fakeInvalidator{}
	w := testWorker(runner, inv)

	body := []byte(`{"rag_instance_id":42,"collection":"rag_abc","user_id":7}`)
	w.handle(context.Background(), amqp.Delivery{Body: body})

	if len(runner.instanceIDs) != 1 || runner.instanceIDs[0] != 42 {
		t.Fatalf("pipeline runs = %v, want [42]", runner.instanceIDs)
	}
	if len(inv.collections) != 1 || inv.collections[0] != "rag_abc" {
		t.Fatalf("cache invalidations = %v, want [rag_abc]", inv.collections)
	}
}

func Test_Handle_FailedRunKeepsCache(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{err: errors.New("metadata store down")}
	inv := &fakeInvalidator{}
	w := testWorker(runner, inv)

	body := []byte(`{"rag_instance_id":42,"collection":"rag_abc","user_id":7}`)
	w.handle(context.Background(), amqp.Delivery{Body: body})

	if len(inv.collections) != 0 {
		t.Fatalf("cache invalidated after failed run: %v", inv.collections)
	}
}

func Test_Handle_MalformedJobSkipsPipeline(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	w := testWorker(runner, &fakeInvalidator{})

	w.handle(context.Background(), amqp.Delivery{Body: []byte("not json")})

	if len(runner.instanceIDs) != 0 {
		t.Fatalf("pipeline ran on malformed job: %v", runner.instanceIDs)
	}
}
