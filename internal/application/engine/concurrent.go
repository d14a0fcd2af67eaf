package engine

// concurrent.go: worker pool para el polling paralelo de símbolos.
//
// El fetch de precios es el coste dominante del ciclo: con ~170 símbolos y
// ~300ms por request, en secuencial el ciclo tarda casi un minuto.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/orbwatch/internal/domain"
)

// symbolResult es lo que produce el procesado de un símbolo en un ciclo.
type symbolResult struct {
	index  int
	symbol domain.Symbol
	err    error
	alert  *domain.Alert
}

// pollConcurrent procesa todos los símbolos con un pool de workers acotado.
// Cada símbolo lo procesa exactamente un worker, así que dentro de un ciclo
// el read-modify-write de un símbolo nunca se solapa consigo mismo.
//
// Si workers <= 0 usa runtime.NumCPU() × 2. Si el contexto se cancela deja de
// encolar símbolos; los ya encolados terminan su propio procesado.
func pollConcurrent(
	ctx context.Context,
	symbols []domain.Symbol,
	workers int,
	process func(ctx context.Context, sym domain.Symbol) symbolResult,
) []symbolResult {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	type work struct {
		index  int
		symbol domain.Symbol
	}

	workCh := make(chan work, len(symbols))
	resultCh := make(chan symbolResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				r := process(ctx, w.symbol)
				r.index, r.symbol = w.index, w.symbol
				resultCh <- r
			}
		}()
	}

	queued := 0
	for i, sym := range symbols {
		if ctx.Err() != nil {
			slog.Warn("cycle cancelled, remaining symbols skipped", "skipped", len(symbols)-i)
			break
		}
		workCh <- work{index: i, symbol: sym}
		queued++
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Orden del universo configurado, para logs y reportes estables.
	results := make([]symbolResult, queued)
	for r := range resultCh {
		results[r.index] = r
	}

	slog.Debug("concurrent polling complete",
		"symbols_queued", queued,
		"workers", workers,
	)
	return results
}
