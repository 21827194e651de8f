package events_test

import (
	"testing"

	"github.com/arthachain/ledger/foundation/events"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to fan events out to listeners.")
	{
		evts := events.New()

		ch := evts.Acquire("viewer-1")
		if evts.Acquire("viewer-1") != ch {
			t.Fatalf("\t%s\tShould return the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould return the same channel for the same id.", success)

		evts.SendViewer("state: AppendBlock: internal detail")
		evts.SendViewer("viewer: block: blk[1]")

		if got := <-ch; got != "block: blk[1]" {
			t.Fatalf("\t%s\tShould forward only viewer events without the prefix, got %q.", failed, got)
		}
		if len(ch) != 0 {
			t.Fatalf("\t%s\tShould not forward internal events.", failed)
		}
		t.Logf("\t%s\tShould forward only viewer events without the prefix.", success)

		for i := 0; i < 500; i++ {
			evts.Send("flood")
		}
		t.Logf("\t%s\tShould not block on a listener that is behind.", success)

		if err := evts.Release("viewer-1"); err != nil {
			t.Fatalf("\t%s\tShould release the listener: %s", failed, err)
		}
		if err := evts.Release("viewer-1"); err == nil {
			t.Fatalf("\t%s\tShould fail to release an unknown listener.", failed)
		}
		t.Logf("\t%s\tShould release a listener once.", success)

		evts.Acquire("viewer-2")
		evts.Shutdown()
		if evts.Count() != 0 {
			t.Fatalf("\t%s\tShould remove every listener on shutdown.", failed)
		}
		t.Logf("\t%s\tShould remove every listener on shutdown.", success)
	}
}
