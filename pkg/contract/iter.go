package contract

import (
	"iter"

	"github.com/22388o/sapio/pkg/template"
)

// TemplateIter lazily yields the transaction templates a branch proposes.
// Yielding a non-nil error ends the stream; consumers stop at the first
// error and decide per the branch's verdict whether it is fatal.
type TemplateIter = iter.Seq2[*template.Template, error]

// Templates yields the given templates in order.
func Templates(ts ...*template.Template) TemplateIter {
	return func(yield func(*template.Template, error) bool) {
		for _, t := range ts {
			if !yield(t, nil) {
				return
			}
		}
	}
}

// NoTemplates yields nothing. A branch returning it contributes only its
// unlocking clause.
func NoTemplates() TemplateIter {
	return func(yield func(*template.Template, error) bool) {}
}

// TemplateErr yields a single error.
func TemplateErr(err error) TemplateIter {
	return func(yield func(*template.Template, error) bool) {
		yield(nil, err)
	}
}

// BuildTemplate runs one builder and yields its result, collapsing the
// common single-template branch body to one call.
func BuildTemplate(b *template.Builder) TemplateIter {
	return func(yield func(*template.Template, error) bool) {
		yield(b.Done())
	}
}

// collectTemplates drains it, stopping at the first error. Templates
// accepted before the error are discarded by the caller.
func collectTemplates(it TemplateIter) ([]*template.Template, error) {
	var out []*template.Template
	var failed error
	it(func(t *template.Template, err error) bool {
		if err != nil {
			failed = err
			return false
		}
		out = append(out, t)
		return true
	})
	if failed != nil {
		return nil, failed
	}
	return out, nil
}
