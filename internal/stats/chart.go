package stats

import (
	"fmt"

	"github.com/go-analyze/charts"
	"gitlab.com/yelinaung/tipbot/internal/repository"
)

// GenerateActivityChart creates a line chart of daily completed-tip volume.
// Returns PNG image as bytes.
func GenerateActivityChart(volumes []repository.DailyVolume, coinSymbol string) ([]byte, error) {
	if len(volumes) == 0 {
		return nil, fmt.Errorf("no tip activity to chart")
	}

	values := make([]float64, 0, len(volumes))
	labels := make([]string, 0, len(volumes))
	for _, v := range volumes {
		values = append(values, v.Volume.InexactFloat64())
		labels = append(labels, v.Day.Format("01-02"))
	}

	p, err := charts.LineRender(
		[][]float64{values},
		charts.TitleOptionFunc(charts.TitleOption{
			Text: fmt.Sprintf("Daily Tip Volume (%s)", coinSymbol),
		}),
		charts.XAxisLabelsOptionFunc(labels),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	return buf, nil
}
