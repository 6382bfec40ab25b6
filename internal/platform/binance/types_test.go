package binance

import (
	"encoding/json"
	"testing"
	"time"
)

// A real row from GET /api/v3/klines, trailing fields included.
const klineRow = `[
	1700000000000,
	"37419.50000000",
	"37500.00000000",
	"37300.10000000",
	"37444.44000000",
	"123.45600000",
	1700003599999,
	"4620912.12345678",
	2891,
	"60.00000000",
	"2246666.00000000",
	"0"
]`

func TestKlineUnmarshalPositionalRow(t *testing.T) {
	var k Kline
	if err := json.Unmarshal([]byte(klineRow), &k); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	wantOpen := time.UnixMilli(1700000000000).UTC()
	if !k.OpenTime.Equal(wantOpen) {
		t.Errorf("OpenTime = %v, want %v", k.OpenTime, wantOpen)
	}
	wantClose := time.UnixMilli(1700003599999).UTC()
	if !k.CloseTime.Equal(wantClose) {
		t.Errorf("CloseTime = %v, want %v", k.CloseTime, wantClose)
	}
	if k.Open != 37419.5 {
		t.Errorf("Open = %v, want 37419.5", k.Open)
	}
	if k.High != 37500 {
		t.Errorf("High = %v, want 37500", k.High)
	}
	if k.Low != 37300.1 {
		t.Errorf("Low = %v, want 37300.1", k.Low)
	}
	if k.Close != 37444.44 {
		t.Errorf("Close = %v, want 37444.44", k.Close)
	}
	if k.Volume != 123.456 {
		t.Errorf("Volume = %v, want 123.456", k.Volume)
	}
}

func TestKlineUnmarshalRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"not an array", `{"open": 1}`},
		{"too short", `[1700000000000, "1", "2", "3"]`},
		{"non-decimal price", `[1700000000000, "abc", "2", "3", "4", "5", 1700003599999]`},
		{"numeric price", `[1700000000000, 1.0, "2", "3", "4", "5", 1700003599999]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var k Kline
			if err := json.Unmarshal([]byte(tt.row), &k); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestKlineBarUsesOpenTime(t *testing.T) {
	k := Kline{
		OpenTime:  time.UnixMilli(1700000000000).UTC(),
		CloseTime: time.UnixMilli(1700003599999).UTC(),
		Open:      100, High: 110, Low: 90, Close: 105, Volume: 42,
	}
	bar := k.Bar()
	if !bar.Timestamp.Equal(k.OpenTime) {
		t.Fatalf("Bar timestamp = %v, want open time %v", bar.Timestamp, k.OpenTime)
	}
	if bar.Close != 105 || bar.Volume != 42 {
		t.Fatalf("Bar fields not copied: %+v", bar)
	}
}

func TestStreamKlineConversion(t *testing.T) {
	frame := `{
		"e": "kline", "E": 1700000060000, "s": "BTCUSDT",
		"k": {
			"t": 1700000000000, "T": 1700003599999, "i": "1h",
			"o": "100.5", "h": "110.0", "l": "99.0", "c": "108.25",
			"v": "55.5", "x": true
		}
	}`

	var ev wsKlineEvent
	if err := json.Unmarshal([]byte(frame), &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Symbol != "BTCUSDT" {
		t.Fatalf("Symbol = %q, want BTCUSDT", ev.Symbol)
	}
	if !ev.Kline.Closed {
		t.Fatal("Closed flag not decoded")
	}

	k, err := ev.Kline.toKline()
	if err != nil {
		t.Fatalf("toKline: %v", err)
	}
	if k.Close != 108.25 {
		t.Errorf("Close = %v, want 108.25", k.Close)
	}
	if !k.OpenTime.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Errorf("OpenTime = %v", k.OpenTime)
	}

	bad := wsKlineData{Open: "x", High: "1", Low: "1", Close: "1", Volume: "1"}
	if _, err := bad.toKline(); err == nil {
		t.Fatal("expected error for bad decimal")
	}
}
