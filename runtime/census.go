package runtime

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chazu/quark/heap"
)

// Census counts the objects in the runtime's active space.
func (rt *Runtime) Census() heap.Census { return rt.heap.TakeCensus() }

// CensusDump is the on-disk form of a census.
type CensusDump struct {
	RuntimeID string      `msgpack:"runtime_id"`
	Stats     heap.Stats  `msgpack:"stats"`
	Census    heap.Census `msgpack:"census"`
}

// Dump captures the runtime's census and statistics.
func (rt *Runtime) Dump() CensusDump {
	return CensusDump{RuntimeID: rt.ID, Stats: rt.heap.Memory().Stats(), Census: rt.Census()}
}

// WriteDumps encodes dumps to w as a msgpack array.
func WriteDumps(w io.Writer, dumps []CensusDump) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(dumps)
}

// ReadDumps decodes what WriteDumps wrote.
func ReadDumps(r io.Reader) ([]CensusDump, error) {
	var dumps []CensusDump
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&dumps); err != nil {
		return nil, fmt.Errorf("reading census: %w", err)
	}
	return dumps, nil
}

// FormatCensus renders c as an aligned table.
func FormatCensus(c heap.Census) string {
	rows := [][]string{{"type", "objects", "bytes"}}
	for _, e := range c.Entries {
		rows = append(rows, []string{e.Type, fmt.Sprint(e.Objects), fmt.Sprint(e.Bytes)})
	}
	rows = append(rows, []string{"total", "", fmt.Sprintf("%d / %d", c.Used, c.Capacity)})
	return FormatTable(rows)
}

// FormatTable aligns rows into columns. The first column is left aligned,
// the rest right aligned.
func FormatTable(rows [][]string) string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var sb strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
				sb.WriteString(runewidth.FillLeft(cell, widths[i]))
				continue
			}
			if len(row) == 1 {
				sb.WriteString(cell)
			} else {
				sb.WriteString(runewidth.FillRight(cell, widths[i]))
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
