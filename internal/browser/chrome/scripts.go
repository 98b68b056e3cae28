package chrome

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/autopass/internal/browser"
)

// refAttribute marks elements the agent has handed out references for.
// References stay valid until the next navigation replaces the document.
const refAttribute = "data-autopass-ref"

// tagFunc assigns a reference to an element on first sight and returns it.
const tagFunc = `const __tag = (el) => {
  let ref = el.getAttribute('` + refAttribute + `');
  if (!ref) {
    window.__autopassSeq = (window.__autopassSeq || 0) + 1;
    ref = 'c-' + window.__autopassSeq;
    el.setAttribute('` + refAttribute + `', ref);
  }
  return ref;
};
const __describeInput = (el) => ({
  ref: __tag(el),
  type: el.getAttribute('type') || 'text',
  name: el.getAttribute('name') || '',
  id: el.getAttribute('id') || '',
  placeholder: el.getAttribute('placeholder') || '',
  ariaLabel: el.getAttribute('aria-label') || '',
});
`

const findInputsScript = `(() => {
` + tagFunc + `
  return Array.from(document.querySelectorAll('input')).map(__describeInput);
})()`

const findClickableScript = `(() => {
` + tagFunc + `
  const skip = new Set(['HTML', 'HEAD', 'BODY', 'SCRIPT', 'STYLE', 'TITLE', 'META', 'LINK']);
  const words = ['submit', 'login'];
  const mentions = (v) => { v = (v || '').toLowerCase(); return words.some((w) => v.includes(w)); };
  const ownText = (el) => Array.from(el.childNodes)
    .filter((n) => n.nodeType === Node.TEXT_NODE)
    .map((n) => n.textContent).join('').trim();
  const out = [];
  for (const el of document.querySelectorAll('*')) {
    if (skip.has(el.tagName)) continue;
    const tag = el.tagName.toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    const role = el.getAttribute('role') || '';
    const own = ownText(el);
    let clickable = tag === 'button' || role.toLowerCase() === 'button' ||
      (tag === 'input' && (type === 'submit' || type === 'button'));
    if (!clickable) {
      clickable = [el.id, el.getAttribute('class'), el.getAttribute('aria-label'), own].some(mentions);
    }
    if (!clickable) continue;
    out.push({
      ref: __tag(el),
      tag: tag,
      type: type,
      role: role,
      id: el.id || '',
      class: el.getAttribute('class') || '',
      ariaLabel: el.getAttribute('aria-label') || '',
      text: tag === 'button' ? (el.textContent || '').trim() : own,
      value: el.getAttribute('value') || '',
    });
  }
  return out;
})()`

// queryScript returns the first input matching selector, or an empty
// object when none does.
func queryScript(selector string) string {
	return fmt.Sprintf(`(() => {
%s
  for (const el of document.querySelectorAll(%s)) {
    if (el.tagName === 'INPUT') return __describeInput(el);
  }
  return {};
})()`, tagFunc, jsString(selector))
}

// submitFormScript submits the form owning ref after the evaluation returns,
// so the resulting navigation does not abort the call. It reports whether a
// form was found.
func submitFormScript(ref browser.ElementRef) string {
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el || !el.form) return false;
  const form = el.form;
  setTimeout(() => { form.requestSubmit ? form.requestSubmit() : form.submit(); }, 0);
  return true;
})()`, jsString(refSelector(ref)))
}

// refSelector is the CSS selector for a reference.
func refSelector(ref browser.ElementRef) string {
	return "[" + refAttribute + "=" + jsString(string(ref)) + "]"
}

// jsString quotes s as a JSON string literal, which is also a valid JS and
// CSS string.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

type jsInput struct {
	Ref         string `json:"ref"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	AriaLabel   string `json:"ariaLabel"`
}

func (in jsInput) descriptor() browser.InputDescriptor {
	return browser.InputDescriptor{
		Ref:         browser.ElementRef(in.Ref),
		Type:        in.Type,
		Name:        in.Name,
		ID:          in.ID,
		Placeholder: in.Placeholder,
		AriaLabel:   in.AriaLabel,
	}
}

type jsClickable struct {
	Ref       string `json:"ref"`
	Tag       string `json:"tag"`
	Type      string `json:"type"`
	Role      string `json:"role"`
	ID        string `json:"id"`
	Class     string `json:"class"`
	AriaLabel string `json:"ariaLabel"`
	Text      string `json:"text"`
	Value     string `json:"value"`
}

func (c jsClickable) descriptor() browser.ClickableDescriptor {
	return browser.ClickableDescriptor{
		Ref:       browser.ElementRef(c.Ref),
		Tag:       c.Tag,
		Type:      c.Type,
		Role:      c.Role,
		ID:        c.ID,
		Class:     c.Class,
		AriaLabel: c.AriaLabel,
		Text:      c.Text,
		Value:     c.Value,
	}
}
