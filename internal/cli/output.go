package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Output форматирует вывод CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. jsonMode=true печатает данные как JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Print печатает таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table печатает таблицу. Числовые колонки выравниваются вправо.
func (o *Output) Table(headers []string, rows [][]string, rightAligned ...int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(o.w)
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	tw.Render()
}

// KeyValue печатает пары "ключ: значение" одной колонкой.
func (o *Output) KeyValue(pairs [][2]string) {
	for _, p := range pairs {
		fmt.Fprintf(o.w, "%-12s %s\n", p[0]+":", p[1])
	}
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success печатает сообщение в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, color.New(color.FgGreen).Sprint(msg))
}

// Error печатает ошибку в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, color.New(color.FgRed).Sprint("Error: ")+msg)
}

// Status раскрашивает статус скана или run.
func Status(s string) string {
	switch s {
	case "done", "SUCCEEDED", "approved":
		return color.New(color.FgGreen).Sprint(s)
	case "error", "FAILED":
		return color.New(color.FgRed).Sprint(s)
	case "substituted":
		return color.New(color.FgYellow).Sprint(s)
	default:
		return color.New(color.FgCyan).Sprint(s)
	}
}
