// Package report prints resolved engines and scenario results for humans.
// The output is not a stable machine interface.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/seantiz/electric/internal/engine"
	"github.com/seantiz/electric/internal/mdi"
	"github.com/seantiz/electric/internal/scenario"
	"github.com/seantiz/electric/internal/session"
)

// Engines prints one line per bound engine, in binding order.
func Engines(w io.Writer, b *engine.Bindings) error {
	bw := bufio.NewWriter(w)
	for _, r := range b.Roles() {
		fmt.Fprintf(bw, "Engine name: %s\n", r)
	}
	return bw.Flush()
}

// Result prints every record of res.
func Result(w io.Writer, res *session.Result) error {
	bw := bufio.NewWriter(w)
	for _, rec := range res.Records {
		if err := record(bw, rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func record(w io.Writer, rec session.Record) error {
	label := Label(rec.Command)

	switch rec.Format {
	case scenario.FormatValue:
		v, err := rec.Value()
		if err != nil {
			return err
		}
		if rec.Step != session.NoStep {
			fmt.Fprintf(w, "step %d %s: %d\n", rec.Step, label, v)
		} else {
			fmt.Fprintf(w, "%s: %d\n", label, v)
		}

	case scenario.FormatVectors:
		vecs, err := rec.Vectors()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:\n", title(label))
		for i, v := range vecs {
			fmt.Fprintf(w, "   %d: %s %s %s\n", i, num(v[0]), num(v[1]), num(v[2]))
		}

	case scenario.FormatMonopoles:
		mono, err := rec.Monopoles()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Monopoles:")
		for i, v := range mono {
			fmt.Fprintf(w, "   %d: %s\n", i, num(v))
		}
	}
	return nil
}

// Label is the lower-case noun of a command, e.g. "natoms" for <NATOMS.
func Label(cmd mdi.Command) string {
	return strings.ToLower(strings.TrimLeft(string(cmd), "<>@"))
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
