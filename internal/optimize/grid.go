package optimize

import "ashare-backtest-lab/internal/strategy"

// MACrossGrid expands fast/slow period lists into configs, skipping
// combinations where fast >= slow.
func MACrossGrid(fasts, slows []int) []strategy.Config {
	var grid []strategy.Config
	for _, fast := range fasts {
		for _, slow := range slows {
			if fast >= slow {
				continue
			}
			grid = append(grid, strategy.Config{
				Type:       strategy.TypeMACross,
				FastPeriod: fast,
				SlowPeriod: slow,
			})
		}
	}
	return grid
}

// MACDGrid expands fast/slow/signal period lists into configs.
func MACDGrid(fasts, slows, signals []int) []strategy.Config {
	var grid []strategy.Config
	for _, fast := range fasts {
		for _, slow := range slows {
			if fast >= slow {
				continue
			}
			for _, signal := range signals {
				grid = append(grid, strategy.Config{
					Type:         strategy.TypeMACD,
					FastPeriod:   fast,
					SlowPeriod:   slow,
					SignalPeriod: signal,
				})
			}
		}
	}
	return grid
}

// BollingerGrid expands period and band-multiple lists into configs.
func BollingerGrid(periods []int, mults []float64) []strategy.Config {
	var grid []strategy.Config
	for _, period := range periods {
		for _, mult := range mults {
			grid = append(grid, strategy.Config{
				Type:     strategy.TypeBollinger,
				Period:   period,
				BandMult: mult,
			})
		}
	}
	return grid
}
