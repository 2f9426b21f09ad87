package boot

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

func newStore(t *testing.T) *coredump.Store {
	t.Helper()
	s, err := coredump.NewStore(mmio.NewSimBus(), mmio.Region{Name: "CoreDump", Origin: 0x10000000, Length: 0x40})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCheckAbsent(t *testing.T) {
	var buf bytes.Buffer
	r, err := Check(newStore(t), Options{Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if r.Found {
		t.Fatalf("record found in empty store")
	}
	if buf.Len() != 0 {
		t.Fatalf("logged %q for an empty store", buf.String())
	}
}

func TestCheckReportsAndClears(t *testing.T) {
	store := newStore(t)
	rec := coredump.Record{Category: fault.CategoryAccess, R0: 0xCCCCCCCC, ReturnAddress: 0x08000240, StackPointer: 0x20017FE0, Aux: 42}
	if err := store.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var buf bytes.Buffer
	r, err := Check(store, Options{ClearAfterReport: true, Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !r.Found || r.Record != rec {
		t.Fatalf("report = %+v", r)
	}
	out := buf.String()
	for _, want := range []string{"AccessFault", "0x08000240", "0xCCCCCCCC", "aux:            42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}

	r, err = Check(store, Options{Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatalf("second Check: %v", err)
	}
	if r.Found {
		t.Fatalf("record reported twice with ClearAfterReport")
	}
}

func TestCheckKeepsRecordByDefault(t *testing.T) {
	store := newStore(t)
	if err := store.Write(coredump.Record{Category: fault.CategoryEscalated}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		r, err := Check(store, Options{Logger: log.New(&buf, "", 0)})
		if err != nil || !r.Found {
			t.Fatalf("Check %d: found=%v err=%v", i, r.Found, err)
		}
	}
}
