// Command gensamples writes a synthetic replay file. The output may be a
// local path or an s3:// URL, in which case the S3 settings come from the
// same configuration file and TRADESIM_* environment as tradesim.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	s3blob "github.com/alanyoungcy/tradesim/internal/blob/s3"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/replay"
	"github.com/alanyoungcy/tradesim/internal/simdata"
)

func main() {
	def := simdata.DefaultConfig()
	configPath := flag.String("config", "", "path to configuration file (S3 settings)")
	output := flag.String("output", "test_data.json", "local path or s3://bucket/key")
	samples := flag.Int("samples", def.Samples, "number of samples")
	depth := flag.Int("depth", def.Depth, "levels per side")
	basePrice := flag.Float64("base-price", def.BasePrice, "starting mid price")
	volatility := flag.Float64("volatility", def.Volatility, "max relative move per sample")
	seed := flag.Int64("seed", def.Seed, "random seed")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	gen := def
	gen.Samples = *samples
	gen.Depth = *depth
	gen.BasePrice = *basePrice
	gen.Volatility = *volatility
	gen.Seed = *seed

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *output, gen); err != nil {
		logger.Error("generate samples", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("samples written",
		slog.String("output", *output),
		slog.Int("samples", gen.Samples),
		slog.Int64("seed", gen.Seed),
	)
}

func run(ctx context.Context, configPath, output string, gen simdata.Config) error {
	if gen.Samples < 1 || gen.Depth < 1 {
		return errors.New("gensamples: samples and depth must be >= 1")
	}

	var buf bytes.Buffer
	if err := replay.Encode(&buf, simdata.Generate(gen)); err != nil {
		return err
	}

	if !strings.HasPrefix(output, "s3://") {
		return os.WriteFile(output, buf.Bytes(), 0o644)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	return s3blob.NewWriter(client).Put(ctx, output, &buf, "application/json")
}
