// Package datagen produces synthetic price series files and loads stored
// series, both generated and fetched, in the shared flat-file format: a JSON
// metadata header line followed by one `timestamp,session,price` line per
// point (generated files leave the first two columns empty).
package datagen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"quantopia/internal/domain"
	"quantopia/internal/util"
)

// Trend selects the overall direction of a generated series.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendStable Trend = "stable"
	TrendDown   Trend = "down"
)

// Params controls series generation. Zero values fall back to the documented
// defaults.
type Params struct {
	Length          int     `json:"length"`
	BaseMean        float64 `json:"base_mean"`
	Trend           Trend   `json:"trend"`
	StartPrice      float64 `json:"start_price"`
	EndPrice        float64 `json:"end_price"`
	VolatilityProb  float64 `json:"volatility_prob"`
	VolatilityScale float64 `json:"volatility_scale"`
	Seed            int64   `json:"seed"`
	HasSeed         bool    `json:"-"`
}

func (p *Params) applyDefaults() {
	if p.Length <= 0 {
		p.Length = 100
	}
	if p.BaseMean == 0 {
		p.BaseMean = 100
	}
	if p.Trend == "" {
		p.Trend = TrendStable
	}
	if p.VolatilityProb == 0 {
		p.VolatilityProb = 0.3
	}
	if p.VolatilityScale == 0 {
		p.VolatilityScale = 0.02
	}
}

// Metadata is the header record written as the first line of a generated
// file.
type Metadata struct {
	FileID          string  `json:"file_id"`
	Length          int     `json:"length"`
	BaseMean        float64 `json:"base_mean"`
	Trend           Trend   `json:"trend"`
	StartPrice      float64 `json:"start_price"`
	EndPrice        float64 `json:"end_price"`
	VolatilityProb  float64 `json:"volatility_prob"`
	VolatilityScale float64 `json:"volatility_scale"`
	GeneratedAt     string  `json:"generated_at"`
	Seed            *int64  `json:"seed"`
}

// Generator creates and reads price series files. GenerateDir holds
// synthetic series; FetchDir is searched as a fallback so fetched task logs
// can feed backtests.
type Generator struct {
	generateDir string
	fetchDir    string
}

// NewGenerator ensures the generate directory exists and returns a ready
// Generator.
func NewGenerator(generateDir, fetchDir string) (*Generator, error) {
	if err := os.MkdirAll(generateDir, 0o755); err != nil {
		return nil, fmt.Errorf("datagen: create output dir: %w", err)
	}
	return &Generator{generateDir: generateDir, fetchDir: fetchDir}, nil
}

// Generate writes a new synthetic series file and returns its file id.
func (g *Generator) Generate(p Params) (string, error) {
	p.applyDefaults()

	var rng *rand.Rand
	if p.HasSeed {
		rng = rand.New(rand.NewSource(p.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	fileID := util.NewID()

	startPrice := p.StartPrice
	if startPrice == 0 {
		startPrice = p.BaseMean * (1 + rng.NormFloat64()*0.1)
	}
	endPrice := p.EndPrice
	if endPrice == 0 {
		switch p.Trend {
		case TrendUp:
			endPrice = startPrice * (1 + uniform(rng, 0.05, 0.3))
		case TrendDown:
			endPrice = startPrice * (1 - uniform(rng, 0.05, 0.3))
		default:
			endPrice = startPrice * (1 + uniform(rng, -0.05, 0.05))
		}
	}

	prices := make([]float64, p.Length)
	current := startPrice
	for i := 0; i < p.Length; i++ {
		// Linear interpolation towards the end price forms the trend line.
		var trendTarget float64
		if p.Length == 1 {
			trendTarget = endPrice
		} else {
			trendTarget = startPrice + (endPrice-startPrice)*float64(i)/float64(p.Length-1)
		}

		var volatility float64
		if rng.Float64() < p.VolatilityProb {
			volatility = rng.NormFloat64() * p.VolatilityScale * p.BaseMean * (1 + rng.Float64())
		} else {
			volatility = rng.NormFloat64() * p.VolatilityScale * 0.3 * p.BaseMean
		}

		drift := 0.0
		if i < p.Length-1 {
			drift = (trendTarget - current) / float64(p.Length-i)
		}
		current = math.Max(0.01, current+drift+volatility)
		prices[i] = math.Round(current*1000) / 1000
	}

	meta := Metadata{
		FileID:          fileID,
		Length:          p.Length,
		BaseMean:        round3(p.BaseMean),
		Trend:           p.Trend,
		StartPrice:      round3(startPrice),
		EndPrice:        round3(endPrice),
		VolatilityProb:  round3(p.VolatilityProb),
		VolatilityScale: round3(p.VolatilityScale),
		GeneratedAt:     time.Now().Format(time.RFC3339),
	}
	if p.HasSeed {
		seed := p.Seed
		meta.Seed = &seed
	}

	if err := g.writeFile(fileID, meta, prices); err != nil {
		return "", err
	}
	return fileID, nil
}

func (g *Generator) writeFile(fileID string, meta Metadata, prices []float64) error {
	path := filepath.Join(g.generateDir, fileID+".txt")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("datagen: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("datagen: marshal metadata: %w", err)
	}
	w.Write(header)
	w.WriteByte('\n')
	for _, price := range prices {
		fmt.Fprintf(w, ",,%s\n", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("datagen: write %s: %w", path, err)
	}
	return nil
}

// resolve finds the on-disk path for a file id, checking the generate
// directory first and the fetch directory second.
func (g *Generator) resolve(fileID string) (string, error) {
	path := filepath.Join(g.generateDir, fileID+".txt")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if g.fetchDir != "" {
		path = filepath.Join(g.fetchDir, fileID+".txt")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("datagen: data file not found: %s", fileID)
}

// Load reads a stored series. The metadata comes back as a generic map so
// both generated headers and fetch-task headers parse.
func (g *Generator) Load(fileID string) (map[string]any, []float64, error) {
	path, err := g.resolve(fileID)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("datagen: read %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, nil, fmt.Errorf("datagen: empty data file: %s", fileID)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &meta); err != nil {
		return nil, nil, fmt.Errorf("datagen: parse metadata of %s: %w", fileID, err)
	}

	var prices []float64
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 3 {
			continue
		}
		priceStr := strings.TrimSpace(parts[2])
		if priceStr == "" {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		prices = append(prices, price)
	}

	return meta, prices, nil
}

// LoadPoints reads a stored series with timestamps and session labels
// preserved, for fetched data.
func (g *Generator) LoadPoints(fileID string) ([]domain.PricePoint, error) {
	path, err := g.resolve(fileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datagen: read %s: %w", path, err)
	}

	var points []domain.PricePoint
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 3 {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			continue
		}
		point := domain.PricePoint{
			Session: strings.TrimSpace(parts[1]),
			Price:   price,
		}
		if ts := strings.TrimSpace(parts[0]); ts != "" {
			if parsed, err := time.Parse("2006-01-02 15:04:05", ts); err == nil {
				point.Timestamp = parsed
			}
		}
		points = append(points, point)
	}
	return points, nil
}

// List returns the metadata of every readable series in the generate
// directory. Unreadable files are skipped.
func (g *Generator) List() []map[string]any {
	entries, err := os.ReadDir(g.generateDir)
	if err != nil {
		return nil
	}
	var files []map[string]any
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".txt") {
			continue
		}
		meta, _, err := g.Load(strings.TrimSuffix(name, ".txt"))
		if err != nil {
			continue
		}
		files = append(files, meta)
	}
	return files
}

// Delete removes a generated series file.
func (g *Generator) Delete(fileID string) error {
	path := filepath.Join(g.generateDir, fileID+".txt")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("datagen: delete %s: %w", fileID, err)
	}
	return nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
