package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	minCodeLen    = 8
	maxCodeLen    = 10
	maxFiles      = bits.UintSize
)

func validLength(code string) bool {
	return len(code) >= minCodeLen && len(code) <= maxCodeLen
}

// findValidCodes returns the codes present in at least two files, sorted.
//
// The first pass builds one bloom filter per file. The second pass re-reads
// every file and keeps the codes that some other file's filter reports, then
// merges per-file bitmasks so that false positives are dropped.
func findValidCodes(ctx context.Context, lg *zap.Logger, files []string, capacity uint) ([]string, error) {
	if len(files) < 2 {
		return nil, errors.Errorf("need at least 2 files, got %d", len(files))
	}
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files are supported, got %d", maxFiles, len(files))
	}

	lg.Info("Building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, lg, files, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Scanning for shared codes")
	masks := make([]map[string]uint, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			m, err := sharedCodes(gCtx, lg, i, path, filters)
			masks[i] = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "scan files")
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}
	slices.Sort(valid)
	return valid, nil
}

func buildFilters(ctx context.Context, lg *zap.Logger, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f := bloom.NewWithEstimates(capacity, bloomFPR)
			n, err := streamCodes(ctx, path, func(code string) {
				f.AddString(code)
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			lg.Info("Bloom filter built", zap.String("file", path), zap.Uint64("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// sharedCodes returns the codes of file idx that another file's filter
// reports, each marked with the bit of idx.
func sharedCodes(ctx context.Context, lg *zap.Logger, idx int, path string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	found := make(map[string]uint)
	bit := uint(1) << uint(idx)

	n, err := streamCodes(ctx, path, func(code string) {
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				found[code] |= bit
				return
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "file %d", idx+1)
	}
	lg.Info("File scanned",
		zap.String("file", path),
		zap.Uint64("codes", n),
		zap.Int("candidates", len(found)),
	)
	return found, nil
}

// streamCodes calls fn for each line of a gzip file that has a valid code
// length and returns how many lines it accepted.
func streamCodes(ctx context.Context, path string, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var n uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := scanner.Text()
		if !validLength(code) {
			continue
		}
		fn(code)
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrap(err, "scan")
	}
	return n, nil
}
