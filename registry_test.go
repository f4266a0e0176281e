package elink

import (
	"testing"
)

func TestRegistryCreatePrinterDeduplicates(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize()

	info := PrinterInfo{PrinterID: "printer-1", PrinterType: PrinterTypeElegooFdmCC, Host: "127.0.0.1", Port: 1883}

	first, err := registry.CreatePrinter(info)
	if err != nil {
		t.Fatalf("CreatePrinter returned error: %v", err)
	}

	second, err := registry.CreatePrinter(info)
	if err != nil {
		t.Fatalf("second CreatePrinter returned error: %v", err)
	}

	if first != second {
		t.Fatalf("CreatePrinter for an existing id returned a different session")
	}
}

func TestRegistryCreatePrinterUnknownTypeFails(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize()

	_, err := registry.CreatePrinter(PrinterInfo{PrinterID: "printer-x", PrinterType: PrinterTypeUnknown})
	if err == nil {
		t.Fatalf("CreatePrinter with an unknown printer type succeeded, want error")
	}
}

func TestRegistryRemoveThenGetReturnsNil(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize()

	info := PrinterInfo{PrinterID: "printer-1", PrinterType: PrinterTypeElegooFdmCC, Host: "127.0.0.1", Port: 1883}
	if _, err := registry.CreatePrinter(info); err != nil {
		t.Fatalf("CreatePrinter returned error: %v", err)
	}

	if ok := registry.RemovePrinter("printer-1"); !ok {
		t.Fatalf("RemovePrinter reported no printer removed")
	}
	if session := registry.GetPrinter("printer-1"); session != nil {
		t.Fatalf("GetPrinter returned a session after RemovePrinter")
	}
	if ok := registry.RemovePrinter("printer-1"); ok {
		t.Fatalf("RemovePrinter on an already-removed id reported success")
	}
}

func TestRegistryEventCallbackIsNotRetroactive(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize()

	infoA := PrinterInfo{PrinterID: "printer-a", PrinterType: PrinterTypeElegooFdmCC, Host: "127.0.0.1", Port: 1883}
	if _, err := registry.CreatePrinter(infoA); err != nil {
		t.Fatalf("CreatePrinter returned error: %v", err)
	}

	var gotEvents []string
	registry.SetPrinterEventCallback(func(printerID string, event BizEvent) {
		gotEvents = append(gotEvents, printerID)
	})

	// The callback just installed must not be retrofitted onto printer-a,
	// which was created before SetPrinterEventCallback ran.
	sessionA := registry.GetPrinter("printer-a")
	sessionA.onMessage([]byte(`{"event":"test"}`))
	if len(gotEvents) != 0 {
		t.Fatalf("printer-a should not have received a callback, it predates SetPrinterEventCallback")
	}

	infoB := PrinterInfo{PrinterID: "printer-b", PrinterType: PrinterTypeElegooFdmCC, Host: "127.0.0.1", Port: 1883}
	if _, err := registry.CreatePrinter(infoB); err != nil {
		t.Fatalf("CreatePrinter returned error: %v", err)
	}

	sessionB := registry.GetPrinter("printer-b")
	sessionB.callbackMu.Lock()
	cb := sessionB.eventCallback
	sessionB.callbackMu.Unlock()
	if cb == nil {
		t.Fatalf("printer-b created after SetPrinterEventCallback has no event callback installed")
	}
}

func TestRegistryGetCachedPrinters(t *testing.T) {
	registry := NewRegistry()
	registry.Initialize()

	infos := []PrinterInfo{
		{PrinterID: "printer-1", PrinterType: PrinterTypeElegooFdmCC, Host: "127.0.0.1", Port: 1883},
		{PrinterID: "printer-2", PrinterType: PrinterTypeElegooFdmCC2, Host: "127.0.0.1", Port: 1884},
	}
	for _, info := range infos {
		if _, err := registry.CreatePrinter(info); err != nil {
			t.Fatalf("CreatePrinter(%s) returned error: %v", info.PrinterID, err)
		}
	}

	cached := registry.GetCachedPrinters()
	if len(cached) != len(infos) {
		t.Fatalf("got %d cached printers, want %d", len(cached), len(infos))
	}
}
