// Package intake reads delivery files of received pieces and turns them into
// intake stock movements.
//
// Delivery files are gzip-compressed CSV with rows of
// product_id,serial,quantity. Every serial must be unique across the whole
// batch. Files are scanned twice: the first pass builds one bloom filter
// per file, the second pass sends every row whose serial might repeat to an
// exact count. Rows that can not repeat go straight to the totals, so only
// the suspects are kept in memory.
package intake

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/jewellery-pos/internal/domain/checkout"
	"github.com/xenking/jewellery-pos/internal/domain/stock"
)

const (
	defaultExpectedSerials = 1_000_000
	defaultFPR             = 0.001
	progressEvery          = 100_000
)

// Config sizes the bloom filters.
type Config struct {
	// ExpectedSerials is the number of serials expected per file.
	ExpectedSerials uint
	// FalsePositiveRate of each filter. Higher rates only cost memory for
	// the exact count, never correctness.
	FalsePositiveRate float64
}

func (c Config) withDefaults() Config {
	if c.ExpectedSerials == 0 {
		c.ExpectedSerials = defaultExpectedSerials
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = defaultFPR
	}
	return c
}

// Row is one received piece, or a batch of identical unserialised pieces.
type Row struct {
	ProductID string
	Serial    string
	Quantity  int
}

// RowError reports a malformed delivery row.
type RowError struct {
	File string
	Line int
	Msg  string
}

func (e *RowError) Error() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Msg
}

// Report is the outcome of a scan.
type Report struct {
	Files int
	Rows  int
	// Received is the accepted quantity per product.
	Received map[string]int
	// Duplicates lists serials seen more than once, sorted. None of their
	// rows are counted in Received.
	Duplicates []string
}

type fileScan struct {
	filter *bloom.BloomFilter
	// repeats holds serials the file's own filter had already seen.
	repeats map[string]struct{}

	rows     int
	received map[string]int
	suspects []Row
}

// Scan reads files concurrently and totals the pieces received per product.
func Scan(ctx context.Context, files []string, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	scans := make([]*fileScan, len(files))

	slog.Info("pass 1: building serial filters", slog.Int("files", len(files)))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			s, err := buildFilter(gctx, path, cfg)
			if err != nil {
				return errors.Wrapf(err, "filter %s", path)
			}
			scans[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("pass 2: totalling pieces")
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			if err := total(gctx, path, i, scans); err != nil {
				return errors.Wrapf(err, "total %s", path)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(scans), nil
}

func buildFilter(ctx context.Context, path string, cfg Config) (*fileScan, error) {
	s := &fileScan{
		filter:  bloom.NewWithEstimates(cfg.ExpectedSerials, cfg.FalsePositiveRate),
		repeats: make(map[string]struct{}),
	}
	err := streamRows(ctx, path, func(r Row) {
		if s.filter.TestOrAddString(r.Serial) {
			s.repeats[r.Serial] = struct{}{}
		}
	})
	return s, err
}

func total(ctx context.Context, path string, idx int, scans []*fileScan) error {
	s := scans[idx]
	s.received = make(map[string]int)

	return streamRows(ctx, path, func(r Row) {
		s.rows++
		if s.rows%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.String("file", path), slog.Int("rows", s.rows))
		}
		if s.mightRepeat(r.Serial, idx, scans) {
			s.suspects = append(s.suspects, r)
			return
		}
		s.received[r.ProductID] += r.Quantity
	})
}

func (s *fileScan) mightRepeat(serial string, idx int, scans []*fileScan) bool {
	if _, ok := s.repeats[serial]; ok {
		return true
	}
	for j, other := range scans {
		if j != idx && other.filter.TestString(serial) {
			return true
		}
	}
	return false
}

// merge sums the per-file totals and settles the suspects by exact count.
// Every occurrence of a repeated serial is a suspect, so counting them is
// enough.
func merge(scans []*fileScan) *Report {
	rep := &Report{Files: len(scans), Received: make(map[string]int)}

	seen := make(map[string]int)
	for _, s := range scans {
		rep.Rows += s.rows
		for id, qty := range s.received {
			rep.Received[id] += qty
		}
		for _, r := range s.suspects {
			seen[r.Serial]++
		}
	}

	for _, s := range scans {
		for _, r := range s.suspects {
			if seen[r.Serial] == 1 {
				rep.Received[r.ProductID] += r.Quantity
			}
		}
	}
	for serial, n := range seen {
		if n > 1 {
			rep.Duplicates = append(rep.Duplicates, serial)
		}
	}
	slices.Sort(rep.Duplicates)
	return rep
}

// streamRows opens a gzip-compressed CSV file and calls fn for each row.
// A leading header row is skipped.
func streamRows(ctx context.Context, path string, fn func(Row)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	cr := csv.NewReader(gz)
	cr.FieldsPerRecord = 3
	cr.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &RowError{File: path, Line: line, Msg: err.Error()}
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "product_id") {
			continue
		}
		r, err := parseRow(rec)
		if err != nil {
			return &RowError{File: path, Line: line, Msg: err.Error()}
		}
		fn(r)
	}
}

func parseRow(rec []string) (Row, error) {
	r := Row{
		ProductID: strings.TrimSpace(rec[0]),
		Serial:    strings.TrimSpace(rec[1]),
	}
	if r.ProductID == "" {
		return Row{}, errors.New("product_id is empty")
	}
	if r.Serial == "" {
		return Row{}, errors.New("serial is empty")
	}
	qty, err := strconv.Atoi(strings.TrimSpace(rec[2]))
	if err != nil || qty <= 0 {
		return Row{}, errors.Errorf("quantity %q is not a positive integer", rec[2])
	}
	r.Quantity = qty
	return r, nil
}

// Apply appends one intake movement per product in rep, in product order,
// all inside tx when one is given.
func Apply(ctx context.Context, store stock.Store, tx checkout.Transactor, reference string, rep *Report, now time.Time) ([]stock.Movement, error) {
	ids := make([]string, 0, len(rep.Received))
	for id, qty := range rep.Received {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var out []stock.Movement
	write := func(ctx context.Context) error {
		out = out[:0]
		for _, id := range ids {
			m := stock.Movement{
				ProductID: id,
				Delta:     rep.Received[id],
				Reason:    stock.ReasonIntake,
				Reference: reference,
				CreatedAt: now,
			}
			if err := store.AppendMovement(ctx, m); err != nil {
				return errors.Wrapf(err, "intake %s", id)
			}
			out = append(out, m)
		}
		return nil
	}

	if tx == nil {
		if err := write(ctx); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := tx.InTx(ctx, write); err != nil {
		return nil, err
	}
	return out, nil
}
