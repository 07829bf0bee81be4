package bulkfile

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rickgao/options-data/internal/model"
)

const bulkHeader = "ticker,conditions,correction,exchange,price,sip_timestamp,size\n"

func gzipBody(t *testing.T, csv string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(csv)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return io.NopCloser(&buf)
}

type fakeObjects struct {
	objects map[string]string // key -> raw CSV
	t       *testing.T
	keys    []string
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	csvBody, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: gzipBody(f.t, csvBody)}, nil
}

type fakeTradeWriter struct {
	rows []model.OptionTrade
}

func (f *fakeTradeWriter) BatchUpsertOptionTrades(_ context.Context, rows []model.OptionTrade) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func TestIngestDayFiltersAndParses(t *testing.T) {
	csvBody := bulkHeader +
		// 50 × 100 × 20 = 100_000: kept.
		"O:TEST240119C00100000,209 227,0,312,50,1704380400000000000,20\n" +
		// 4.99 × 100 × 20 = 9_980: dropped.
		"O:TEST240119C00100000,,0,312,4.99,1704380401000000000,20\n" +
		// Unparseable ticker: skipped.
		"12345,,0,312,50,1704380402000000000,20\n"
	store := &fakeObjects{t: t, objects: map[string]string{
		"trades/2024-01-04.csv.gz": csvBody,
	}}
	writer := &fakeTradeWriter{}
	f := New(DefaultConfig(), store, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	day := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	n, err := f.IngestDay(context.Background(), day)
	if err != nil {
		t.Fatalf("IngestDay: %v", err)
	}
	if n != 1 || len(writer.rows) != 1 {
		t.Fatalf("n=%d rows=%d, want 1", n, len(writer.rows))
	}

	row := writer.rows[0]
	if row.UnderlyingTicker != "TEST" {
		t.Errorf("underlying = %q, want TEST", row.UnderlyingTicker)
	}
	if row.Conditions != "[209,227]" {
		t.Errorf("conditions = %q, want [209,227]", row.Conditions)
	}
	if row.Exchange != 312 {
		t.Errorf("exchange = %d, want 312", row.Exchange)
	}
	// sip_timestamp is nanoseconds; stored at millisecond precision.
	want := time.UnixMilli(1704380400000).UTC()
	if !row.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", row.Timestamp, want)
	}
}

func TestIngestDayHeaderOnlyFile(t *testing.T) {
	store := &fakeObjects{t: t, objects: map[string]string{
		"trades/2024-01-04.csv.gz": bulkHeader,
	}}
	writer := &fakeTradeWriter{}
	f := New(DefaultConfig(), store, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := f.IngestDay(context.Background(), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("IngestDay: %v", err)
	}
	if n != 0 || len(writer.rows) != 0 {
		t.Fatalf("n=%d rows=%d, want no writes", n, len(writer.rows))
	}
}

func TestIngestDayMissingObject(t *testing.T) {
	store := &fakeObjects{t: t, objects: map[string]string{}}
	writer := &fakeTradeWriter{}
	f := New(DefaultConfig(), store, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := f.IngestDay(context.Background(), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("IngestDay: %v (missing object means no data, not failure)", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
}

func TestIngestRangeIsolatesBadDays(t *testing.T) {
	store := &fakeObjects{t: t, objects: map[string]string{
		// 01-02 is not gzip-parseable CSV: put garbage columns.
		"trades/2024-01-02.csv.gz": "not,the,expected,header\nx,y,z,w\n",
		"trades/2024-01-03.csv.gz": bulkHeader +
			"O:TEST240119C00100000,,0,312,50,1704380400000000000,20\n",
	}}
	writer := &fakeTradeWriter{}
	f := New(DefaultConfig(), store, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	n, err := f.IngestRange(context.Background(), start, end)
	if err != nil {
		t.Fatalf("IngestRange: %v (bad days must not abort the range)", err)
	}
	if n != 1 {
		t.Fatalf("inserted = %d, want 1 from the good day", n)
	}
	if len(store.keys) != 3 {
		t.Fatalf("keys fetched = %v, want all 3 days attempted", store.keys)
	}
}

func TestNormalizeConditions(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "[]"},
		{"209", "[209]"},
		{"209 227", "[209,227]"},
		{"209,227", "[209,227]"},
		{"garbage", "[]"},
	}
	for _, tc := range cases {
		if got := normalizeConditions(tc.in); got != tc.want {
			t.Errorf("normalizeConditions(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
