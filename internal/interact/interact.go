// Package interact drives scroll, click and form probes against a page to
// trigger lazily-bound trackers. Probes are non-destructive: forms are
// typed into and cleared, never submitted.
package interact

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"consentscan/internal/browser"
	ilog "consentscan/internal/log"
)

const (
	maxClicks        = 3
	clickDelay       = 800 * time.Millisecond
	scrollSettle     = 800 * time.Millisecond
	scrollSettleFast = 350 * time.Millisecond
)

// scrollStages are fractions of the page height visited in order.
var scrollStages = []float64{0.30, 0.60, 0.95, 1.0}

// Simulator runs interaction probes against one page.
type Simulator struct {
	page browser.Page
	fast bool
}

func New(page browser.Page, fast bool) *Simulator {
	return &Simulator{page: page, fast: fast}
}

// SimulateScroll walks the staged scroll positions with settle delays and
// returns to the top, waking scroll-bound trackers and lazy content.
func (s *Simulator) SimulateScroll(ctx context.Context) {
	settle := scrollSettle
	if s.fast {
		settle = scrollSettleFast
	}
	for _, stage := range scrollStages {
		expr := fmt.Sprintf(
			`window.scrollTo({top: document.body.scrollHeight * %.2f, behavior: 'instant'}); true`,
			stage,
		)
		if _, err := s.page.Evaluate(ctx, expr); err != nil {
			ilog.L().Debug().Err(err).Msg("scroll stage failed")
			return
		}
		if err := browser.Wait(ctx, settle); err != nil {
			return
		}
	}
	_, _ = s.page.Evaluate(ctx, `window.scrollTo({top: 0, behavior: 'instant'}); true`)
	_ = browser.Wait(ctx, settle/2)
}

// SimulateClicks discovers telephone/contact style links and dispatches a
// synthetic pointer sequence on up to maxClicks of them.
func (s *Simulator) SimulateClicks(ctx context.Context) int {
	raw, err := s.page.Evaluate(ctx, discoverLinksJS)
	if err != nil {
		ilog.L().Debug().Err(err).Msg("link discovery failed")
		return 0
	}

	clicked := 0
	for _, link := range gjson.Parse(raw).Array() {
		if clicked >= maxClicks {
			break
		}
		if !link.Get("visible").Bool() {
			continue
		}
		href := link.Get("href").String()
		text := link.Get("text").String()
		if !isPhoneLink(href, text) {
			continue
		}
		// Re-resolve the anchor as a live element at click time; the DOM
		// may have shifted since discovery.
		expr := fmt.Sprintf(clickNthLinkJS, link.Get("index").Int())
		res, err := s.page.Evaluate(ctx, expr)
		if err != nil {
			ilog.L().Debug().Err(err).Str("href", href).Msg("click dispatch failed")
			continue
		}
		if gjson.Parse(res).Get("clicked").Bool() {
			clicked++
			if err := browser.Wait(ctx, clickDelay); err != nil {
				break
			}
		}
	}
	return clicked
}

// FindForms classifies every form on the page by field-presence signature.
func (s *Simulator) FindForms(ctx context.Context) []FormInfo {
	raw, err := s.page.Evaluate(ctx, discoverFormsJS)
	if err != nil {
		ilog.L().Debug().Err(err).Msg("form discovery failed")
		return nil
	}
	var out []FormInfo
	for _, f := range gjson.Parse(raw).Array() {
		shape := formShape{
			Passwords:  int(f.Get("passwords").Int()),
			Emails:     int(f.Get("emails").Int()),
			Searches:   int(f.Get("searches").Int()),
			Texts:      int(f.Get("texts").Int()),
			Checkboxes: int(f.Get("checkboxes").Int()),
			Textareas:  int(f.Get("textareas").Int()),
			Total:      int(f.Get("total").Int()),
			Visible:    f.Get("visible").Bool(),
			Attrs:      f.Get("attrs").String(),
		}
		info := FormInfo{
			Index:   int(f.Get("index").Int()),
			Type:    classifyForm(shape),
			Visible: shape.Visible,
		}
		for _, l := range f.Get("labels").Array() {
			info.FieldLabels = append(info.FieldLabels, l.String())
		}
		out = append(out, info)
	}
	return out
}

// InteractWithForm focuses, types into and clears the first matching
// visible field (email/name/surname) without submitting, surfacing
// analytics bound to input and change events.
func (s *Simulator) InteractWithForm(ctx context.Context) bool {
	raw, err := s.page.Evaluate(ctx, touchFormJS)
	if err != nil {
		ilog.L().Debug().Err(err).Msg("form interaction failed")
		return false
	}
	return gjson.Parse(raw).Get("touched").Bool()
}

const discoverLinksJS = `(() => {
	const out = [];
	const anchors = document.querySelectorAll('a[href]');
	for (let i = 0; i < anchors.length; i++) {
		const a = anchors[i];
		const r = a.getBoundingClientRect();
		out.push({
			index: i,
			href: a.getAttribute('href') || '',
			text: (a.textContent || '').trim().slice(0, 64),
			visible: r.width > 0 && r.height > 0,
		});
	}
	return out;
})()`

// clickNthLinkJS dispatches hover, down, up, click at the geometric center
// of the nth anchor. preventDefault on a listener still fires the bound
// trackers, which is all the probe needs.
const clickNthLinkJS = `(() => {
	const anchors = document.querySelectorAll('a[href]');
	const a = anchors[%d];
	if (!a) return { clicked: false };
	const r = a.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return { clicked: false };
	const x = r.left + r.width / 2;
	const y = r.top + r.height / 2;
	const opts = { bubbles: true, cancelable: true, clientX: x, clientY: y, view: window };
	for (const type of ['pointerover', 'mouseover', 'pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click']) {
		const ev = type.startsWith('pointer') ? new PointerEvent(type, opts) : new MouseEvent(type, opts);
		a.dispatchEvent(ev);
	}
	return { clicked: true };
})()`

const discoverFormsJS = `(() => {
	const out = [];
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		const cs = getComputedStyle(el);
		return cs.display !== 'none' && cs.visibility !== 'hidden';
	};
	const labelFor = (input) => {
		if (input.labels && input.labels.length) return (input.labels[0].textContent || '').trim().slice(0, 40);
		return input.getAttribute('placeholder') || input.getAttribute('name') || input.type || '';
	};
	const forms = document.querySelectorAll('form');
	for (let i = 0; i < forms.length; i++) {
		const f = forms[i];
		const shape = { index: i, passwords: 0, emails: 0, searches: 0, texts: 0,
			checkboxes: 0, textareas: 0, total: 0, labels: [], visible: visible(f) };
		for (const input of f.querySelectorAll('input, textarea, select')) {
			if (input.type === 'hidden' || input.type === 'submit' || input.type === 'button') continue;
			shape.total++;
			shape.labels.push(labelFor(input));
			if (input.tagName === 'TEXTAREA') { shape.textareas++; continue; }
			const nm = ((input.name || '') + ' ' + (input.id || '')).toLowerCase();
			switch (input.type) {
			case 'password': shape.passwords++; break;
			case 'email': shape.emails++; break;
			case 'search': shape.searches++; break;
			case 'checkbox': shape.checkboxes++; break;
			default:
				if (nm.includes('email') || nm.includes('e-mail')) shape.emails++;
				else shape.texts++;
			}
		}
		shape.attrs = ((f.id || '') + ' ' + (f.className || '') + ' ' + (f.getAttribute('action') || '')).toLowerCase();
		out.push(shape);
	}
	return out;
})()`

const touchFormJS = `(() => {
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) return false;
		return getComputedStyle(el).display !== 'none';
	};
	const candidates = document.querySelectorAll(
		'input[type="email"], input[name*="email" i], input[name*="name" i], input[name*="surname" i], input[name*="nachname" i]'
	);
	for (const input of candidates) {
		if (!visible(input) || input.disabled || input.readOnly) continue;
		input.focus();
		const fire = (type) => input.dispatchEvent(new Event(type, { bubbles: true }));
		input.value = 'test';
		fire('input');
		fire('change');
		input.value = '';
		fire('input');
		fire('change');
		input.blur();
		return { touched: true };
	}
	return { touched: false };
})()`
