package tencent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tickwatch/tickwatch/internal/models"
)

func TestQuoteCode(t *testing.T) {
	tests := []struct {
		market   models.Market
		symbol   string
		expected string
		wantErr  bool
	}{
		{models.MarketCN, "600519.SH", "sh600519", false},
		{models.MarketCN, "000001.SZ", "sz000001", false},
		{models.MarketCN, "830799.BJ", "bj830799", false},
		{models.MarketCN, "600519", "sh600519", false},
		{models.MarketCN, "000001", "sz000001", false},
		{models.MarketCN, "830799", "bj830799", false},
		{models.MarketCN, "ABC", "", true},
		{models.MarketHK, "700.HK", "hk00700", false},
		{models.MarketHK, "00700", "hk00700", false},
		{models.MarketHK, "9988.HK", "hk09988", false},
		{models.MarketHK, "ABC.HK", "", true},
		{models.MarketUS, "AAPL", "usAAPL", false},
		{models.MarketUS, "BRK.B", "usBRK", false},
		{models.MarketUS, "not a symbol!!", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.market)+"/"+tt.symbol, func(t *testing.T) {
			code, err := QuoteCode(tt.market, tt.symbol)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s/%s, got %q", tt.market, tt.symbol, code)
				}
				return
			}
			if err != nil {
				t.Fatalf("QuoteCode failed: %v", err)
			}
			if code != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, code)
			}
		})
	}
}

// quotePayload builds a ~-separated payload with values placed at the
// documented field indices.
func quotePayload(fields map[int]string) string {
	parts := make([]string, 70)
	for i, v := range fields {
		parts[i] = v
	}
	return fmt.Sprintf("v_test=\"%s\";", strings.Join(parts, "~"))
}

func TestGetQuote_ParsesCNQuote(t *testing.T) {
	payload := quotePayload(map[int]string{
		1:  "KWEICHOW",
		3:  "1700.5",
		4:  "1690.0",
		5:  "1695.0",
		9:  "1700.4",
		11: "1700.6",
		33: "1710.0",
		34: "1688.0",
		35: "23:59:59/x/4250000000",
		36: "25000",
		45: "21360.5",
		65: "32.5",
	})

	var capturedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	client := NewClient(WithQuoteBaseURL(srv.URL))
	quote, err := client.GetQuote(context.Background(), models.MarketCN, "600519.SH")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}

	if capturedPath != "/q=sh600519" {
		t.Errorf("expected path /q=sh600519, got %s", capturedPath)
	}
	if quote.Name != "KWEICHOW" {
		t.Errorf("expected name KWEICHOW, got %s", quote.Name)
	}
	if *quote.Price != 1700.5 {
		t.Errorf("expected price 1700.5, got %v", *quote.Price)
	}
	if *quote.PrevClose != 1690.0 {
		t.Errorf("expected prev close 1690.0, got %v", *quote.PrevClose)
	}
	if *quote.Change != 10.5 {
		t.Errorf("expected change 10.5, got %v", *quote.Change)
	}
	// CN volume is in lots of 100
	if *quote.Volume != 2500000 {
		t.Errorf("expected volume 2500000, got %v", *quote.Volume)
	}
	if *quote.Amount != 4250000000 {
		t.Errorf("expected amount from segment field, got %v", *quote.Amount)
	}
	// CN market cap is in units of 1e8
	if *quote.MarketCap != 21360.5*1e8 {
		t.Errorf("expected market cap %.0f, got %v", 21360.5*1e8, *quote.MarketCap)
	}
	if *quote.PERatio != 32.5 {
		t.Errorf("expected pe 32.5, got %v", *quote.PERatio)
	}
	if *quote.Bid != 1700.4 || *quote.Ask != 1700.6 {
		t.Errorf("unexpected bid/ask %v/%v", *quote.Bid, *quote.Ask)
	}
}

func TestGetQuote_MissingFieldsStayNil(t *testing.T) {
	payload := quotePayload(map[int]string{
		1: "SPARSE",
		3: "10.0",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	client := NewClient(WithQuoteBaseURL(srv.URL))
	quote, err := client.GetQuote(context.Background(), models.MarketHK, "00700")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}

	if *quote.Price != 10.0 {
		t.Errorf("expected price 10.0, got %v", *quote.Price)
	}
	if quote.PrevClose != nil || quote.Change != nil || quote.MarketCap != nil || quote.PERatio != nil {
		t.Errorf("expected nil fields for missing data")
	}
}

func TestGetQuote_RejectsImplausibleUSQuote(t *testing.T) {
	payload := quotePayload(map[int]string{
		1: "SHIFTED",
		3: "1000.0",
		4: "100.0", // ratio 10x, outside sanity band
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	client := NewClient(WithQuoteBaseURL(srv.URL))
	if _, err := client.GetQuote(context.Background(), models.MarketUS, "AAPL"); err == nil {
		t.Fatal("expected error for implausible quote")
	}
}

func TestGetQuote_RetriesOnServerError(t *testing.T) {
	payload := quotePayload(map[int]string{1: "RETRY", 3: "10.0"})
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, payload)
	}))
	defer srv.Close()

	client := NewClient(WithQuoteBaseURL(srv.URL), WithRetries(2))
	quote, err := client.GetQuote(context.Background(), models.MarketUS, "AAPL")
	if err != nil {
		t.Fatalf("GetQuote failed after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if *quote.Price != 10.0 {
		t.Errorf("expected price 10.0, got %v", *quote.Price)
	}
}

func TestGetDailyBars_ParsesKline(t *testing.T) {
	body := `{"data":{"sh600519":{"day":[
		["2024-01-03","101.0","102.5","103.0","100.5","13000"],
		["2024-01-02","100.0","101.0","102.0","99.0","12345"]
	]}}}`

	var capturedURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedURL = r.URL.String()
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	client := NewClient(WithHistoryBaseURL(srv.URL))
	bars, err := client.GetDailyBars(context.Background(), models.MarketCN, "600519.SH", 420)
	if err != nil {
		t.Fatalf("GetDailyBars failed: %v", err)
	}

	if !strings.Contains(capturedURL, "param=sh600519,day,,,420,qfq") {
		t.Errorf("unexpected request URL %s", capturedURL)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	// oldest first regardless of response order
	if bars[0].Date.Format("2006-01-02") != "2024-01-02" {
		t.Errorf("bars not sorted ascending: first is %s", bars[0].Date)
	}
	if bars[0].Open != 100.0 || bars[0].Close != 101.0 || bars[0].High != 102.0 || bars[0].Low != 99.0 {
		t.Errorf("unexpected OHLC: %+v", bars[0])
	}
	// CN volume in lots of 100
	if bars[0].Volume != 1234500 {
		t.Errorf("expected volume 1234500, got %v", bars[0].Volume)
	}
	if bars[0].Amount != 101.0*1234500 {
		t.Errorf("expected amount %.0f, got %v", 101.0*1234500, bars[0].Amount)
	}
}

func TestGetDailyBars_QfqDayFallback(t *testing.T) {
	body := `{"data":{"usAAPL":{"qfqday":[
		["2024-01-02","190.1","191.2","192.0","189.5","50000000"]
	]}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	client := NewClient(WithHistoryBaseURL(srv.URL))
	bars, err := client.GetDailyBars(context.Background(), models.MarketUS, "AAPL", 100)
	if err != nil {
		t.Fatalf("GetDailyBars failed: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	// US volume is not scaled
	if bars[0].Volume != 50000000 {
		t.Errorf("expected volume 50000000, got %v", bars[0].Volume)
	}
}

func TestGetDailyBars_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	client := NewClient(WithHistoryBaseURL(srv.URL))
	if _, err := client.GetDailyBars(context.Background(), models.MarketCN, "600519.SH", 420); err == nil {
		t.Fatal("expected error for empty kline data")
	}
}
