package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/pocketcoin/node/foundation/blockchain/gossip"
	"github.com/pocketcoin/node/foundation/blockchain/gossip/memory"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_PublishSubscribe(t *testing.T) {
	t.Log("Given the need to share the latest payload on a path.")
	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dir := memory.New()
		path := gossip.BlockchainPath("node-a")

		if err := dir.Publish(ctx, path, []byte("first")); err != nil {
			t.Fatalf("\t%s\tShould be able to publish: %s", failed, err)
		}

		got := make(chan string, 10)
		go dir.Subscribe(ctx, path, func(payload []byte) {
			got <- string(payload)
		})

		select {
		case v := <-got:
			if v != "first" {
				t.Fatalf("\t%s\tShould receive the stored payload first: got %q", failed, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("\t%s\tShould receive the stored payload first.", failed)
		}
		t.Logf("\t%s\tShould receive the stored payload first.", success)

		dir.Publish(ctx, path, []byte("second"))

		select {
		case v := <-got:
			if v != "second" {
				t.Fatalf("\t%s\tShould receive later payloads: got %q", failed, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("\t%s\tShould receive later payloads.", failed)
		}
		t.Logf("\t%s\tShould receive later payloads.", success)

		dir.Publish(ctx, gossip.MempoolPath("node-a"), []byte("other"))

		select {
		case v := <-got:
			t.Fatalf("\t%s\tShould not receive payloads from other paths: got %q", failed, v)
		case <-time.After(50 * time.Millisecond):
		}
		t.Logf("\t%s\tShould not receive payloads from other paths.", success)
	}
}

func Test_Peers(t *testing.T) {
	t.Log("Given the need to discover announced peers.")
	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dir := memory.New()
		dir.Announce(ctx, "node-a")

		got := make(chan string, 10)
		done := make(chan error, 1)
		go func() {
			done <- dir.EnumeratePeers(ctx, func(id string) { got <- id })
		}()

		if v := <-got; v != "node-a" {
			t.Fatalf("\t%s\tShould report peers announced earlier: got %q", failed, v)
		}
		t.Logf("\t%s\tShould report peers announced earlier.", success)

		dir.Announce(ctx, "node-a")
		dir.Announce(ctx, "node-b")

		select {
		case v := <-got:
			if v != "node-b" {
				t.Fatalf("\t%s\tShould report each new peer once: got %q", failed, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("\t%s\tShould report each new peer once.", failed)
		}
		t.Logf("\t%s\tShould report each new peer once.", success)

		cancel()
		if err := <-done; err != context.Canceled {
			t.Fatalf("\t%s\tShould stop when the context is done: %v", failed, err)
		}
		t.Logf("\t%s\tShould stop when the context is done.", success)
	}
}
