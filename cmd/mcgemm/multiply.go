package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fxnlabs/multigemm/internal/accel"
	"github.com/fxnlabs/multigemm/internal/gemm"
	"github.com/fxnlabs/multigemm/internal/reference"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// matrices is the input document of the multiply command.
type matrices struct {
	A [][]float64 `json:"A"`
	B [][]float64 `json:"B"`
}

// product is the output document of the multiply command.
type product struct {
	C [][]float64 `json:"C"`
}

func multiplyCommand() *cli.Command {
	return &cli.Command{
		Name:      "multiply",
		Usage:     `Multiply the matrices of a JSON document {"A": [[...]], "B": [[...]]}`,
		ArgsUsage: "[FILE]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the result to `FILE` instead of stdout"},
		},
		Action: func(c *cli.Context) error {
			log := appLogger(c)

			in := io.Reader(os.Stdin)
			if path := c.Args().First(); path != "" && path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var doc matrices
			if err := json.NewDecoder(in).Decode(&doc); err != nil {
				return fmt.Errorf("failed to decode matrices: %w", err)
			}

			platform, err := newPlatform(appConfig(c), log)
			if err != nil {
				return err
			}
			opts, err := newOptions(appConfig(c))
			if err != nil {
				return err
			}
			res, err := multiply(platform, opts, doc, log)
			if err != nil {
				return err
			}

			out := io.Writer(os.Stdout)
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return json.NewEncoder(out).Encode(res)
		},
	}
}

// multiply runs one product through a full session lifecycle.
func multiply(platform accel.Platform, opts gemm.Options, doc matrices, log *zap.Logger) (product, error) {
	a, m, k, err := reference.Flatten(doc.A)
	if err != nil {
		return product{}, fmt.Errorf("matrix A: %w", err)
	}
	b, kb, n, err := reference.Flatten(doc.B)
	if err != nil {
		return product{}, fmt.Errorf("matrix B: %w", err)
	}
	if k != kb {
		log.Error("Matrix dimensions are not compatible for multiplication",
			zap.Int("a_cols", k),
			zap.Int("b_rows", kb))
		return product{}, fmt.Errorf("matrix dimensions are not compatible for multiplication: A is %dx%d, B is %dx%d", m, k, kb, n)
	}

	s, err := gemm.NewSession(platform, opts, log)
	if err != nil {
		return product{}, err
	}
	w := gemm.Workload{A: a, B: b, C: make([]float32, m*n), M: m, N: n, K: k}
	if err := s.Initialize(w); err != nil {
		return product{}, err
	}
	if err := s.Compute(w); err != nil {
		if ferr := s.Finalize(w); ferr != nil {
			log.Warn("Failed to finalize session after compute failure", zap.Error(ferr))
		}
		return product{}, err
	}
	if err := s.Finalize(w); err != nil {
		return product{}, err
	}

	log.Info("Matrix multiplication successful", zap.Int("m", m), zap.Int("n", n), zap.Int("k", k))
	return product{C: reference.Unflatten(w.C, m, n)}, nil
}
