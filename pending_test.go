package elink

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPendingTableRegisterAndComplete(t *testing.T) {
	table := newPendingTable()

	entry, err := table.register("req-1")
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	want := BizResult[json.RawMessage]{Code: ErrorCodeOK, Data: rawPtr(`{"ok":true}`)}
	if ok := table.complete("req-1", want); !ok {
		t.Fatalf("complete returned false for a registered id")
	}

	select {
	case got := <-entry.completion:
		if got.Code != ErrorCodeOK {
			t.Fatalf("got code %v, want OK", got.Code)
		}
	default:
		t.Fatalf("completion channel has no value after complete")
	}

	if n := table.len(); n != 0 {
		t.Fatalf("table has %d entries after complete, want 0", n)
	}
}

func TestPendingTableDuplicateRegisterFails(t *testing.T) {
	table := newPendingTable()

	if _, err := table.register("req-1"); err != nil {
		t.Fatalf("first register returned error: %v", err)
	}
	if _, err := table.register("req-1"); err == nil {
		t.Fatalf("second register for the same id succeeded, want error")
	}
}

func TestPendingTableLateCompleteIsDropped(t *testing.T) {
	table := newPendingTable()

	if _, err := table.register("req-1"); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	table.remove("req-1")

	if ok := table.complete("req-1", BizResult[json.RawMessage]{Code: ErrorCodeOK}); ok {
		t.Fatalf("complete reported success for an already-removed id")
	}
}

func TestPendingTableCancelAllSignalsEveryEntry(t *testing.T) {
	table := newPendingTable()

	var entries []*pendingRequest
	for i := 0; i < 3; i++ {
		entry, err := table.register(requestIDForTest(i))
		if err != nil {
			t.Fatalf("register returned error: %v", err)
		}
		entries = append(entries, entry)
	}

	table.cancelAll("disconnected")

	for i, entry := range entries {
		select {
		case got := <-entry.completion:
			if got.Code != ErrorCodeDisconnected {
				t.Fatalf("entry %d got code %v, want DISCONNECTED", i, got.Code)
			}
		case <-time.After(time.Second):
			t.Fatalf("entry %d was never signalled by cancelAll", i)
		}
	}

	if n := table.len(); n != 0 {
		t.Fatalf("table has %d entries after cancelAll, want 0", n)
	}
}

func rawPtr(s string) *json.RawMessage {
	raw := json.RawMessage(s)
	return &raw
}

func requestIDForTest(i int) string {
	return string(rune('a' + i))
}
