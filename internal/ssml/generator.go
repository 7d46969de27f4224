// Package ssml derives speech synthesis queries from a General Book.
//
// Every content unit yields one or more queries. A unit that exceeds the
// backend's request limits is split at sentence boundaries, then clause
// boundaries, then whitespace; the pieces concatenate back to the unit text.
package ssml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/narrate/internal/book"
)

const (
	// DefaultMaxChars bounds the billed characters per request.
	DefaultMaxChars = 1900
	// DefaultMaxPayload bounds the full SSML request.
	DefaultMaxPayload = 2850
)

// Options controls query generation.
type Options struct {
	MaxChars   int
	MaxPayload int
	// FoldASCII strips accents and non-ASCII characters. Folded queries no
	// longer reconstruct the unit text exactly.
	FoldASCII bool
	// NoMarks omits the <mark/> that tags each query with its unit.
	NoMarks     bool
	Concurrency int
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.MaxPayload <= 0 {
		o.MaxPayload = DefaultMaxPayload
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Query is one synthesis request.
type Query struct {
	UnitID        string `json:"unitId"`
	SequenceIndex int    `json:"sequenceIndex"`
	SSMLText      string `json:"ssmlText"`
	BilledChars   int    `json:"billedChars"`
	Unresolved    bool   `json:"unresolved,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Result is the ordered query stream plus per-unit capacity failures.
type Result struct {
	Queries     []Query
	Unresolved  []*CapacityError
	BilledChars int
}

// Generate renders every content unit of b into queries, in content order.
func Generate(ctx context.Context, b *book.GeneralBook, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	perUnit := make([][]Query, len(b.Content))
	capErrs := make([]*CapacityError, len(b.Content))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range b.Content {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			listContinues := i > 0 && b.Content[i].Role == book.RoleListItem &&
				b.Content[i-1].Role == book.RoleListItem
			qs, err := RenderUnit(b.Content[i], listContinues, opts)
			var ce *CapacityError
			if errors.As(err, &ce) {
				capErrs[i] = ce
			} else if err != nil {
				return err
			}
			perUnit[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Queries: make([]Query, 0, len(b.Content))}
	for i, qs := range perUnit {
		res.Queries = append(res.Queries, qs...)
		for _, q := range qs {
			res.BilledChars += q.BilledChars
		}
		if ce := capErrs[i]; ce != nil {
			res.Unresolved = append(res.Unresolved, ce)
			opts.Logger.Warn("unit exceeds request limits", "unit_id", ce.UnitID, "error", ce)
		}
	}

	opts.Logger.Info("generated ssml queries",
		"units", len(b.Content),
		"queries", len(res.Queries),
		"billed_chars", res.BilledChars,
		"unresolved", len(res.Unresolved))
	return res, nil
}

// RenderUnit renders one unit into one or more queries. listContinues adds a
// pause before a list item that follows another list item.
//
// A *CapacityError is returned together with a single unresolved query
// holding the whole unit.
func RenderUnit(u book.ContentUnit, listContinues bool, opts Options) ([]Query, error) {
	opts = opts.withDefaults()
	r := renderer{unit: u, pause: listContinues, opts: opts}

	if q, ok := r.fits(u.Text, 0); ok {
		return []Query{q}, nil
	}

	// Upper bound for the sequence index, so pre-splitting measures the
	// longest mark name a piece could carry.
	seqBound := utf8.RuneCountInString(u.Text)

	fitsAnywhere := func(piece string) bool {
		_, first := r.fits(piece, 0)
		_, last := r.fits(piece, seqBound)
		return first && last
	}

	var atoms []string
	for _, sentence := range splitSentences(u.Text) {
		if fitsAnywhere(sentence) {
			atoms = append(atoms, sentence)
			continue
		}
		for _, clause := range splitClauses(sentence) {
			if fitsAnywhere(clause) {
				atoms = append(atoms, clause)
				continue
			}
			atoms = append(atoms, splitWords(clause)...)
		}
	}

	var out []Query
	cur := ""
	for _, atom := range atoms {
		if cur == "" {
			cur = atom
			continue
		}
		if _, ok := r.fits(cur+atom, len(out)); ok {
			cur += atom
			continue
		}
		q, ok := r.fits(cur, len(out))
		if !ok {
			return r.unresolved(cur, len(out))
		}
		out = append(out, q)
		cur = atom
	}
	if cur != "" {
		q, ok := r.fits(cur, len(out))
		if !ok {
			return r.unresolved(cur, len(out))
		}
		out = append(out, q)
	}
	return out, nil
}

type renderer struct {
	unit  book.ContentUnit
	pause bool
	opts  Options
}

// render builds the SSML document for one piece of the unit.
func (r renderer) render(text string, seq int) (string, int) {
	if r.opts.FoldASCII {
		text = foldASCII(text)
	}
	billed := utf8.RuneCountInString(text)
	body := escape(text)

	var sb strings.Builder
	sb.WriteString("<speak>")
	if !r.opts.NoMarks {
		sb.WriteString(`<mark name="`)
		sb.WriteString(MarkName(r.unit.UnitID, seq))
		sb.WriteString(`"/>`)
	}
	if r.pause && seq == 0 {
		sb.WriteString(`<break strength="medium"/>`)
	}
	switch r.unit.Role {
	case book.RoleHeading:
		sb.WriteString(`<p><emphasis level="strong">`)
		sb.WriteString(body)
		sb.WriteString(`</emphasis></p>`)
	case book.RoleBlockquote:
		sb.WriteString(`<p><prosody rate="95%">`)
		sb.WriteString(body)
		sb.WriteString(`</prosody></p>`)
	default:
		sb.WriteString("<p>")
		sb.WriteString(body)
		sb.WriteString("</p>")
	}
	sb.WriteString("</speak>")
	return sb.String(), billed
}

// fits renders text and reports whether it is within both limits.
func (r renderer) fits(text string, seq int) (Query, bool) {
	doc, billed := r.render(text, seq)
	q := Query{UnitID: r.unit.UnitID, SequenceIndex: seq, SSMLText: doc, BilledChars: billed}
	return q, billed <= r.opts.MaxChars && utf8.RuneCountInString(doc) <= r.opts.MaxPayload
}

func (r renderer) unresolved(piece string, seq int) ([]Query, error) {
	doc, billed := r.render(piece, seq)
	ce := &CapacityError{UnitID: r.unit.UnitID, Word: strings.TrimSpace(piece)}
	if billed > r.opts.MaxChars {
		ce.Limit, ce.Max, ce.Size = "chars", r.opts.MaxChars, billed
	} else {
		ce.Limit, ce.Max, ce.Size = "payload", r.opts.MaxPayload, utf8.RuneCountInString(doc)
	}

	whole, total := r.render(r.unit.Text, 0)
	return []Query{{
		UnitID:        r.unit.UnitID,
		SequenceIndex: 0,
		SSMLText:      whole,
		BilledChars:   total,
		Unresolved:    true,
		Error:         ce.Error(),
	}}, ce
}

// MarkName is the <mark/> name carried by a query, used to align speech
// marks back to units.
func MarkName(unitID string, seq int) string {
	return unitID + "." + strconv.Itoa(seq)
}

// ParseMarkName splits a mark name produced by MarkName.
func ParseMarkName(name string) (string, int, error) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid mark name %q", name)
	}
	seq, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid mark name %q: %w", name, err)
	}
	return name[:i], seq, nil
}
