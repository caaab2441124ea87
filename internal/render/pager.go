package render

import (
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// PageLink is one pager control. Skip is the record offset the control
// navigates to; Gap marks an ellipsis between the page window and the
// outer pages.
type PageLink struct {
	Label   string
	Skip    int
	Current bool
	Gap     bool
}

// PagerLinks computes the pager controls: first/previous, a window of page
// numbers around the current page bounded by radius, then next/last.
func PagerLinks(count, skip, num, radius int) []PageLink {
	if num <= 0 || count <= num {
		return nil
	}

	pages := (count + num - 1) / num
	current := skip / num

	var out []PageLink
	if current > 0 {
		out = append(out,
			PageLink{Label: "|<", Skip: 0},
			PageLink{Label: "<", Skip: (current - 1) * num},
		)
	}

	lo := current - radius
	if lo < 0 {
		lo = 0
	}
	hi := current + radius
	if hi > pages-1 {
		hi = pages - 1
	}

	if lo > 0 {
		out = append(out, PageLink{Label: "…", Gap: true})
	}
	for p := lo; p <= hi; p++ {
		out = append(out, PageLink{
			Label:   strconv.Itoa(p + 1),
			Skip:    p * num,
			Current: p == current,
		})
	}
	if hi < pages-1 {
		out = append(out, PageLink{Label: "…", Gap: true})
	}

	if current < pages-1 {
		out = append(out,
			PageLink{Label: ">", Skip: (current + 1) * num},
			PageLink{Label: ">|", Skip: (pages - 1) * num},
		)
	}
	return out
}

// pager renders the pager plus the page size selector. The selector is
// suppressed once the whole record set fits the smallest size on offer.
func (r Renderer) pager(index, count, skip, num, radius int, sizes []int) templ.Component {
	return component(func(w io.Writer) error {
		links := PagerLinks(count, skip, num, radius)
		showSizes := len(sizes) > 0 && count > sizes[0]
		if len(links) == 0 && !showSizes {
			return nil
		}

		if err := writef(w, `<div class="pager">`); err != nil {
			return err
		}
		for _, link := range links {
			var err error
			switch {
			case link.Gap:
				err = writef(w, `<span class="gap">%s</span>`, esc(link.Label))
			case link.Current:
				err = writef(w, `<span class="current">%s</span>`, esc(link.Label))
			default:
				err = writef(w, `<button type="submit" name="%s" value="1">%s</button>`,
					esc(Varname("skip"+strconv.Itoa(link.Skip), 0, index)), esc(link.Label))
			}
			if err != nil {
				return err
			}
		}

		if showSizes {
			if err := writef(w, `<span class="sizes">`); err != nil {
				return err
			}
			for _, size := range sizes {
				var err error
				if size == num {
					err = writef(w, `<span class="current">%d</span>`, size)
				} else {
					err = writef(w, `<button type="submit" name="%s" value="1">%d</button>`,
						esc(Varname("num"+strconv.Itoa(size), 0, index)), size)
				}
				if err != nil {
					return err
				}
			}
			if err := writef(w, `</span>`); err != nil {
				return err
			}
		}

		return writef(w, `</div>`)
	})
}
