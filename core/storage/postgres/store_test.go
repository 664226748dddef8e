package postgres

import (
	"testing"
	"time"

	"github.com/m3rciful/stateful/core/telegram/state"
)

var (
	_ state.Store  = (*Store)(nil)
	_ state.Pinger = (*Store)(nil)
)

func TestDataColumnRoundTrip(t *testing.T) {
	in := dataColumn{"paginator_data": `{"page":1}`, "tz": "3"}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	text, ok := v.(string)
	if !ok {
		t.Fatalf("value bound as %T, want string", v)
	}

	var out dataColumn
	if err := out.Scan([]byte(text)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != 2 || out["paginator_data"] != `{"page":1}` || out["tz"] != "3" {
		t.Fatalf("scanned = %v", out)
	}
}

func TestDataColumnEdgeCases(t *testing.T) {
	var nilCol dataColumn
	if v, _ := nilCol.Value(); v != "{}" {
		t.Fatalf("nil data bound as %v", v)
	}
	var d dataColumn
	if err := d.Scan(nil); err != nil || d == nil {
		t.Fatalf("scan nil: %v %v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Fatal("scan of int must fail")
	}
	if err := d.Scan("not json"); err == nil {
		t.Fatal("scan of invalid json must fail")
	}
}

func TestRowConversion(t *testing.T) {
	rec := state.NewRecord(-100, 5)
	rec.ID = "id-1"
	r := fromRecord(rec)
	if r.ModuleID.Valid {
		t.Fatal("empty module must be stored as NULL")
	}
	rec.SetModule("settings")
	r = fromRecord(rec)
	if !r.ModuleID.Valid || r.ModuleID.String != "settings" {
		t.Fatalf("module = %+v", r.ModuleID)
	}

	r.Data = nil
	r.LastUpdated = time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	back := r.record()
	if back.ModuleID != "settings" || back.ChatID != -100 || back.MessageID != 5 || back.ID != "id-1" {
		t.Fatalf("record = %+v", back)
	}
	if back.Data == nil || back.LastUpdated.Location() != time.UTC {
		t.Fatalf("record not normalized: %+v", back)
	}
}
