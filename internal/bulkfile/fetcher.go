// Package bulkfile ingests daily bulk trade files from the vendor's
// S3-compatible flat-file store. Each object is a gzip CSV covering one
// calendar day of option trades.
package bulkfile

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rickgao/options-data/internal/dates"
	"github.com/rickgao/options-data/internal/model"
	"github.com/rickgao/options-data/internal/polygon"
)

// ObjectGetter is the slice of the S3 API the fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TradeWriter persists parsed trades.
type TradeWriter interface {
	BatchUpsertOptionTrades(ctx context.Context, rows []model.OptionTrade) error
}

// Config holds fetcher settings.
type Config struct {
	Bucket    string  // Object bucket (default "flatfiles")
	Prefix    string  // Key prefix (default "trades")
	Threshold float64 // Minimum notional (price × 100 × size) to keep a trade
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Bucket:    "flatfiles",
		Prefix:    "trades",
		Threshold: 10_000,
	}
}

// NewS3Client builds an S3 client against the vendor's flat-file endpoint
// using static credentials.
func NewS3Client(endpoint, accessKey, secretKey string) *s3.Client {
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}

// Fetcher downloads and ingests daily bulk trade files.
type Fetcher struct {
	cfg    Config
	store  ObjectGetter
	writer TradeWriter
	logger *slog.Logger
}

// New creates a bulk file fetcher.
func New(cfg Config, store ObjectGetter, writer TradeWriter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "flatfiles"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "trades"
	}
	return &Fetcher{cfg: cfg, store: store, writer: writer, logger: logger}
}

// IngestDay downloads one day's file and writes its surviving trades.
// A missing object is the vendor's "no data" signal and yields zero rows.
func (f *Fetcher) IngestDay(ctx context.Context, day time.Time) (int, error) {
	key := fmt.Sprintf("%s/%s.csv.gz", f.cfg.Prefix, day.Format("2006-01-02"))

	out, err := f.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			f.logger.Info("no bulk file for day", "key", key)
			return 0, nil
		}
		return 0, fmt.Errorf("fetching %s: %w", key, err)
	}
	defer out.Body.Close()

	rows, err := f.parse(out.Body)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := f.writer.BatchUpsertOptionTrades(ctx, rows); err != nil {
		return 0, err
	}
	f.logger.Info("bulk file ingested", "key", key, "rows", len(rows))
	return len(rows), nil
}

// IngestRange ingests every day in [start, end] inclusive. Per-day failures
// log and the range continues.
func (f *Fetcher) IngestRange(ctx context.Context, start, end time.Time) (int, error) {
	inserted := 0
	for _, day := range dates.Days(dates.NormalizeToMidnight(start), dates.NormalizeToMidnight(end)) {
		n, err := f.IngestDay(ctx, day)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return inserted, err
			}
			f.logger.Error("bulk day failed, continuing",
				"date", day.Format("2006-01-02"), "error", err)
			continue
		}
		inserted += n
	}
	return inserted, nil
}

// parse decompresses and parses the CSV body, applying the notional filter.
// A header-only file parses to zero rows.
func (f *Fetcher) parse(body io.Reader) ([]model.OptionTrade, error) {
	gz, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	r := csv.NewReader(gz)

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"ticker", "price", "sip_timestamp", "size"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("bulk file missing column %q", required)
		}
	}

	var rows []model.OptionTrade
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			f.logger.Warn("skipping malformed bulk row", "line", line, "error", err)
			continue
		}

		ticker := rec[col["ticker"]]
		underlying := polygon.ExtractUnderlyingTicker(ticker)
		if underlying == "" {
			f.logger.Warn("skipping unparseable option ticker", "ticker", ticker, "line", line)
			continue
		}

		price, err1 := strconv.ParseFloat(rec[col["price"]], 64)
		size, err2 := strconv.ParseFloat(rec[col["size"]], 64)
		sip, err3 := strconv.ParseInt(rec[col["sip_timestamp"]], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			f.logger.Warn("skipping bulk row with bad numeric fields", "line", line)
			continue
		}
		if price*100*size < f.cfg.Threshold {
			continue
		}

		row := model.OptionTrade{
			Ticker:           ticker,
			UnderlyingTicker: underlying,
			Timestamp:        polygon.ConvertTimestamp(sip, true),
			Price:            price,
			Size:             size,
			Conditions:       normalizeConditions(cell(rec, col, "conditions")),
		}
		if v, err := strconv.Atoi(cell(rec, col, "exchange")); err == nil {
			row.Exchange = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(rec []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// normalizeConditions converts the CSV's space- or comma-separated condition
// codes to the JSON array form the store uses.
func normalizeConditions(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "[]"
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	codes := make([]int, 0, len(fields))
	for _, fld := range fields {
		v, err := strconv.Atoi(fld)
		if err != nil {
			return "[]"
		}
		codes = append(codes, v)
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "[]"
	}
	return string(b)
}
