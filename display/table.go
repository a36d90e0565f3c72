package display

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/models"
)

const (
	header   = "Type\tPrice\t\tSize\n"
	tagAsk   = "A"
	tagBid   = "B"
	decimals = 2
)

// TableRenderer writes one fixed-width table per depth snapshot
type TableRenderer struct {
	out io.Writer
}

// NewTableRenderer creates a renderer that appends to out
func NewTableRenderer(out io.Writer) *TableRenderer {
	return &TableRenderer{out: out}
}

// Render writes the header, asks in reverse receipt order, then bids as received.
// The table is written in one call so a failed write never leaves half a table
// followed by another one. Any write failure is an output error.
func (r *TableRenderer) Render(snapshot models.DepthSnapshot) error {
	var buf bytes.Buffer
	Format(&buf, snapshot)

	n, err := r.out.Write(buf.Bytes())
	if err != nil {
		return apperrors.New(apperrors.Output, "render", err)
	}
	if n != buf.Len() {
		return apperrors.New(apperrors.Output, "render", io.ErrShortWrite)
	}
	return nil
}

// Format appends the table for snapshot to buf.
func Format(buf *bytes.Buffer, snapshot models.DepthSnapshot) {
	buf.WriteString(header)
	for i := len(snapshot.Asks) - 1; i >= 0; i-- {
		writeRow(buf, tagAsk, snapshot.Asks[i])
	}
	for _, bid := range snapshot.Bids {
		writeRow(buf, tagBid, bid)
	}
}

func writeRow(buf *bytes.Buffer, tag string, level models.DepthLevel) {
	fmt.Fprintf(buf, "%s\t%s\t\t%s\n", tag, level.Price.StringFixed(decimals), strconv.FormatInt(level.Size, 10))
}
