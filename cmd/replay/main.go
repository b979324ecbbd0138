package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"scout_bot/internal/analysis"
	"scout_bot/internal/models"
)

// Офлайн-реплей: прогоняет WMA-анализ по сохранённой истории цен и печатает
// сигналы по каждой точке. История прогоняется дважды — расхождение между
// прогонами означает недетерминизм и завершает процесс с ошибкой.

func loadSamples(path, pairID string) ([]models.PriceSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read csv")
	}

	out := make([]models.PriceSample, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, errors.Errorf("row %d: want time,price", i)
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d time", i)
		}
		px, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d price", i)
		}
		out = append(out, models.PriceSample{Pair: pairID, Time: ts, Price: px})
	}
	return out, nil
}

func replay(samples []models.PriceSample, short, long int) ([]models.TrendSignal, error) {
	var out []models.TrendSignal
	for i := long; i <= len(samples); i++ {
		sig, err := analysis.ComputeSignal(samples[:i], short, long)
		if err != nil {
			return nil, errors.Wrapf(err, "signal at %d", i-1)
		}
		out = append(out, sig)
	}
	return out, nil
}

func run() error {
	viper.SetDefault("pair", "BTC->ETH")
	viper.SetDefault("wma_short", 7)
	viper.SetDefault("wma_long", 21)

	viper.SetConfigName("replay")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "read config")
		}
	}

	input := viper.GetString("input")
	if len(os.Args) > 1 {
		input = os.Args[1]
	}
	if input == "" {
		return errors.New("usage: replay <prices.csv> (или input: в replay.yaml)")
	}

	pairID := viper.GetString("pair")
	short := viper.GetInt("wma_short")
	long := viper.GetInt("wma_long")

	samples, err := loadSamples(input, pairID)
	if err != nil {
		return err
	}
	if len(samples) < long {
		return errors.Errorf("need at least %d samples, got %d", long, len(samples))
	}

	first, err := replay(samples, short, long)
	if err != nil {
		return err
	}
	second, err := replay(samples, short, long)
	if err != nil {
		return err
	}
	for i := range first {
		if first[i] != second[i] {
			return errors.Errorf("non-deterministic signal at %d: %+v != %+v", i, first[i], second[i])
		}
	}

	for _, sig := range first {
		line := fmt.Sprintf("%s  %-8s strength=%.4f contribution=%+.4f",
			sig.Time.Format(time.RFC3339), sig.Direction, sig.Strength, sig.Contribution())
		if sig.Crossover != models.CrossNone {
			line += "  <-- " + string(sig.Crossover)
		}
		fmt.Println(line)
	}

	if idx := analysis.CrossIndex(samples, short, long); idx >= 0 {
		fmt.Printf("first golden cross at index %d (%s)\n", idx, samples[idx].Time.Format(time.RFC3339))
	}
	fmt.Printf("replayed %d signals twice, deterministic\n", len(first))
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
