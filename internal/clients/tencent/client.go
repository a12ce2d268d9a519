// Package tencent provides a client for the Tencent stock quote and
// kline endpoints (qt.gtimg.cn / web.ifzq.gtimg.cn).
package tencent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/tickwatch/tickwatch/internal/common"
	"github.com/tickwatch/tickwatch/internal/interfaces"
	"github.com/tickwatch/tickwatch/internal/models"
)

const (
	DefaultQuoteBaseURL   = "https://qt.gtimg.cn"
	DefaultHistoryBaseURL = "https://web.ifzq.gtimg.cn"
	DefaultTimeout        = 10 * time.Second
	DefaultRateLimit      = 10 // requests per second
	DefaultRetries        = 2
	DefaultHistoryCount   = 420

	retryBackoff = 300 * time.Millisecond
)

var usCodeRe = regexp.MustCompile(`^[A-Z.\-]{1,10}$`)

// Client implements the MarketDataClient interface
type Client struct {
	quoteBaseURL   string
	historyBaseURL string
	httpClient     *http.Client
	logger         *common.Logger
	limiter        *rate.Limiter
	retries        int
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithQuoteBaseURL sets the quote endpoint base URL
func WithQuoteBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.quoteBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHistoryBaseURL sets the kline endpoint base URL
func WithHistoryBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.historyBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetries sets the number of retries after a failed request
func WithRetries(retries int) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
	}
}

// NewClient creates a new Tencent market data client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		quoteBaseURL:   DefaultQuoteBaseURL,
		historyBaseURL: DefaultHistoryBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		retries: DefaultRetries,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// QuoteCode converts a normalized symbol into the Tencent wire code
// (sh600519, sz000001, bj830799, hk00700, usAAPL).
func QuoteCode(market models.Market, symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	switch market {
	case models.MarketCN:
		if code, suffix, ok := strings.Cut(s, "."); ok {
			switch suffix {
			case "SH":
				return "sh" + code, nil
			case "SZ":
				return "sz" + code, nil
			case "BJ":
				return "bj" + code, nil
			}
			return "", fmt.Errorf("unknown CN suffix in symbol %q", symbol)
		}
		if len(s) == 6 && isDigits(s) {
			switch s[0] {
			case '6':
				return "sh" + s, nil
			case '8', '4':
				return "bj" + s, nil
			default:
				return "sz" + s, nil
			}
		}
		return "", fmt.Errorf("invalid CN symbol %q", symbol)

	case models.MarketHK:
		code := strings.TrimSuffix(s, ".HK")
		if isDigits(code) && len(code) <= 5 {
			return "hk" + strings.Repeat("0", 5-len(code)) + code, nil
		}
		return "", fmt.Errorf("invalid HK symbol %q", symbol)

	case models.MarketUS:
		base, _, _ := strings.Cut(s, ".")
		if usCodeRe.MatchString(base) {
			return "us" + base, nil
		}
		return "", fmt.Errorf("invalid US symbol %q", symbol)
	}

	return "", fmt.Errorf("unknown market %q", market)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// get performs a rate-limited GET with bounded retries
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Debug().Err(err).Str("url", reqURL).Int("attempt", attempt).Msg("Tencent request failed")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("tencent responded %d", resp.StatusCode)
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("tencent request failed after %d attempts: %w", c.retries+1, lastErr)
}

// GetQuote retrieves a real-time quote
func (c *Client) GetQuote(ctx context.Context, market models.Market, symbol string) (*models.Quote, error) {
	code, err := QuoteCode(market, symbol)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/q=%s", c.quoteBaseURL, code))
	if err != nil {
		return nil, err
	}

	// The quote payload is GBK-encoded javascript: v_sh600519="1~贵州茅台~...";
	decoded, err := io.ReadAll(transform.NewReader(strings.NewReader(string(body)), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		decoded = body
	}

	quote, err := parseQuote(market, symbol, string(decoded))
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("code", code).Msg("Tencent quote fetched")
	return quote, nil
}

// Field indices within the ~-separated quote payload. Empirically stable
// across CN/HK/US; see parseQuote for the per-market variations.
const (
	fieldName      = 1
	fieldPrice     = 3
	fieldPrevClose = 4
	fieldOpen      = 5
	fieldBid       = 9
	fieldAsk       = 11
	fieldHigh      = 33
	fieldLow       = 34
	fieldAmountSeg = 35
	fieldVolume    = 36
	fieldAmountAlt = 37
	fieldPE        = 39
	fieldPEAlt     = 41
	fieldCapAlt    = 44
	fieldCap       = 45
	fieldPECN      = 65
)

func parseQuote(market models.Market, symbol, text string) (*models.Quote, error) {
	first := strings.Index(text, `"`)
	if first < 0 {
		return nil, fmt.Errorf("malformed quote payload for %s", symbol)
	}
	rest := text[first+1:]
	second := strings.Index(rest, `"`)
	if second < 0 {
		return nil, fmt.Errorf("malformed quote payload for %s", symbol)
	}
	parts := strings.Split(rest[:second], "~")

	pick := func(i int) *float64 {
		if i >= len(parts) {
			return nil
		}
		return parseFloat(parts[i])
	}

	name := symbol
	if len(parts) > fieldName && parts[fieldName] != "" {
		name = parts[fieldName]
	}

	quote := &models.Quote{
		Symbol:    symbol,
		Name:      name,
		Market:    market,
		Price:     pick(fieldPrice),
		PrevClose: pick(fieldPrevClose),
		Open:      pick(fieldOpen),
		High:      pick(fieldHigh),
		Low:       pick(fieldLow),
		Bid:       pick(fieldBid),
		Ask:       pick(fieldAsk),
		Volume:    pick(fieldVolume),
		AsOf:      time.Now().UTC(),
	}

	// CN volume is reported in lots of 100 shares
	if market == models.MarketCN && quote.Volume != nil {
		quote.Volume = models.Float(*quote.Volume * 100)
	}

	// amount lives inside the /-separated segment at 35, falling back to 37
	if len(parts) > fieldAmountSeg && parts[fieldAmountSeg] != "" {
		if seg := strings.Split(parts[fieldAmountSeg], "/"); len(seg) >= 3 {
			quote.Amount = parseFloat(seg[2])
		}
	}
	if quote.Amount == nil {
		quote.Amount = pick(fieldAmountAlt)
	}
	if quote.Amount == nil && quote.Price != nil && quote.Volume != nil {
		quote.Amount = models.Float(*quote.Price * *quote.Volume)
	}

	if quote.Price != nil && quote.PrevClose != nil && *quote.PrevClose != 0 {
		change := *quote.Price - *quote.PrevClose
		quote.Change = models.Float(change)
		quote.ChangePct = models.Float(change / *quote.PrevClose * 100)
	}

	// US quotes occasionally shift fields for certain symbols; reject
	// obviously wrong prices instead of returning garbage.
	if market == models.MarketUS && quote.Price != nil && quote.PrevClose != nil && *quote.PrevClose > 0 {
		ratio := *quote.Price / *quote.PrevClose
		if ratio < 0.2 || ratio > 5.0 {
			return nil, fmt.Errorf("implausible US quote for %s", symbol)
		}
	}

	quote.MarketCap = parseMarketCap(market, pick)
	quote.PERatio = parsePERatio(market, pick)

	return quote, nil
}

func parseMarketCap(market models.Market, pick func(int) *float64) *float64 {
	switch market {
	case models.MarketCN, models.MarketHK:
		// reported in units of 1e8 (亿)
		cand := pick(fieldCap)
		if cand == nil {
			cand = pick(fieldCapAlt)
		}
		if cand != nil && *cand > 0 {
			return models.Float(*cand * 1e8)
		}
		return nil
	case models.MarketUS:
		// magnitude is unreliable; scale until it lands in a plausible range
		for _, idx := range []int{fieldCap, fieldCapAlt, 62, 63} {
			raw := pick(idx)
			if raw == nil || *raw <= 0 {
				continue
			}
			best := 0.0
			for _, scale := range []float64{1, 1e6, 1e8, 1e9} {
				c := *raw * scale
				if c >= 5e8 && c <= 5e12 && c > best {
					best = c
				}
			}
			if best > 0 {
				return models.Float(best)
			}
		}
	}
	return nil
}

func parsePERatio(market models.Market, pick func(int) *float64) *float64 {
	sane := func(v *float64) *float64 {
		if v == nil || *v <= 0 || *v >= 5000 {
			return nil
		}
		return v
	}
	switch market {
	case models.MarketHK:
		return sane(pick(fieldPE))
	case models.MarketUS:
		if pe := sane(pick(fieldPE)); pe != nil {
			return pe
		}
		return sane(pick(fieldPEAlt))
	case models.MarketCN:
		return sane(pick(fieldPECN))
	}
	return nil
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return models.Float(v)
}

// GetDailyBars retrieves forward-adjusted daily bars, oldest first
func (c *Client) GetDailyBars(ctx context.Context, market models.Market, symbol string, count int) ([]models.PriceBar, error) {
	code, err := QuoteCode(market, symbol)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultHistoryCount
	}

	reqURL := fmt.Sprintf("%s/appstock/app/fqkline/get?param=%s,day,,,%d,qfq", c.historyBaseURL, code, count)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode kline response: %w", err)
	}

	series := resp.Data[code].Day
	if len(series) == 0 {
		series = resp.Data[code].QfqDay
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no kline data for %s", symbol)
	}

	bars := make([]models.PriceBar, 0, len(series))
	for _, row := range series {
		bar, ok := parseKlineRow(market, row)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no parsable kline rows for %s", symbol)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	c.logger.Debug().Str("code", code).Int("bars", len(bars)).Msg("Tencent kline fetched")
	return bars, nil
}

type klineResponse struct {
	Data map[string]klineData `json:"data"`
}

type klineData struct {
	Day    [][]json.RawMessage `json:"day"`
	QfqDay [][]json.RawMessage `json:"qfqday"`
}

// parseKlineRow decodes one [date, open, close, high, low, volume] row.
// Values arrive as strings or numbers depending on the endpoint mood.
func parseKlineRow(market models.Market, row []json.RawMessage) (models.PriceBar, bool) {
	if len(row) < 6 {
		return models.PriceBar{}, false
	}

	var dateStr string
	if err := json.Unmarshal(row[0], &dateStr); err != nil {
		return models.PriceBar{}, false
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return models.PriceBar{}, false
	}

	nums := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, ok := rawFloat(row[i+1])
		if !ok {
			return models.PriceBar{}, false
		}
		nums[i] = v
	}

	volume := nums[4]
	if market == models.MarketCN {
		volume *= 100
	}

	return models.PriceBar{
		Date:   date,
		Open:   nums[0],
		Close:  nums[1],
		High:   nums[2],
		Low:    nums[3],
		Volume: volume,
		Amount: nums[1] * volume,
	}, true
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr == nil {
			return v, true
		}
	}
	return 0, false
}

// Ensure Client implements MarketDataClient
var _ interfaces.MarketDataClient = (*Client)(nil)
