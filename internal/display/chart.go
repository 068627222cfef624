package display

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// PacketSize is one transmitted packet as shown on the packet chart.
type PacketSize struct {
	Subframe int
	Index    int
	Bytes    int
}

// WritePacketChart writes an HTML bar chart of payload sizes, one bar per
// packet, with one series per subframe.
func WritePacketChart(path, title string, sizes []PacketSize) error {
	if len(sizes) == 0 {
		return fmt.Errorf("no packets to chart")
	}

	maxIndex := 0
	subframes := 0
	for _, s := range sizes {
		maxIndex = max(maxIndex, s.Index)
		subframes = max(subframes, s.Subframe+1)
	}

	x := make([]string, maxIndex+1)
	for i := range x {
		x[i] = strconv.Itoa(i)
	}
	series := make([][]opts.BarData, subframes)
	for i := range series {
		series[i] = make([]opts.BarData, maxIndex+1)
	}
	for _, s := range sizes {
		series[s.Subframe][s.Index] = opts.BarData{Value: s.Bytes}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("packets=%d", len(sizes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "packet", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "payload bytes"}),
	)
	bar.SetXAxis(x)
	for i, data := range series {
		bar.AddSeries(fmt.Sprintf("subframe %d", i), data)
	}

	page := components.NewPage()
	page.AddCharts(bar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart %s: %w", path, err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render error: %w", err)
	}
	return f.Close()
}
