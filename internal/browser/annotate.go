package browser

// annotateJS stamps every element with a stable handle, the browser's
// visibility verdict, its rendered box and the focus marker, mirrors live
// form state into attributes, and returns the scroll state. Handles survive
// across snapshots; new nodes get fresh numbers.
const annotateJS = `() => {
	const w = window;
	if (typeof w.__vxNext !== 'number') w.__vxNext = 0;
	const active = document.activeElement;
	for (const el of document.querySelectorAll('*')) {
		if (!el.hasAttribute('data-vx-id')) el.setAttribute('data-vx-id', String(w.__vxNext++));
		const cs = getComputedStyle(el);
		const r = el.getBoundingClientRect();
		const vis = cs.display !== 'none' &&
			cs.visibility !== 'hidden' && cs.visibility !== 'collapse' &&
			parseFloat(cs.opacity || '1') > 0 &&
			el.getClientRects().length > 0;
		el.setAttribute('data-vx-vis', vis ? '1' : '0');
		el.setAttribute('data-vx-w', String(Math.round(r.width)));
		el.setAttribute('data-vx-h', String(Math.round(r.height)));
		if (el === active && el !== document.body) el.setAttribute('data-vx-focus', '1');
		else el.removeAttribute('data-vx-focus');

		const tag = el.tagName;
		if (tag === 'INPUT') {
			const type = (el.getAttribute('type') || '').toLowerCase();
			if (type === 'checkbox' || type === 'radio') {
				if (el.checked) el.setAttribute('checked', '');
				else el.removeAttribute('checked');
			} else if (type !== 'password' && el.getAttribute('value') !== el.value) {
				el.setAttribute('value', el.value);
			}
		} else if (tag === 'SELECT' && el.getAttribute('value') !== el.value) {
			el.setAttribute('value', el.value);
		}
	}
	const de = document.documentElement;
	return {
		href: location.href,
		scrollX: w.scrollX,
		scrollY: w.scrollY,
		width: w.innerWidth,
		height: w.innerHeight,
		scrollHeight: Math.max(de.scrollHeight, document.body ? document.body.scrollHeight : 0),
	};
}`

const viewportJS = `() => {
	const de = document.documentElement;
	return {
		href: location.href,
		scrollX: window.scrollX,
		scrollY: window.scrollY,
		width: window.innerWidth,
		height: window.innerHeight,
		scrollHeight: Math.max(de.scrollHeight, document.body ? document.body.scrollHeight : 0),
	};
}`

const scrollToJS = `(y) => window.scrollTo({top: y, behavior: 'smooth'})`

const scrollIntoViewJS = `(block) => this.scrollIntoView({behavior: 'smooth', block})`

const clickJS = `() => {
	if (typeof this.focus === 'function') this.focus();
	this.click();
}`

// setValueJS goes through the prototype setter so framework-controlled
// inputs notice the change, then fires input and change.
const setValueJS = `(v) => {
	const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
		: this instanceof HTMLSelectElement ? HTMLSelectElement.prototype
		: HTMLInputElement.prototype;
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	this.focus();
	if (desc && desc.set) desc.set.call(this, v);
	else this.value = v;
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
}`

// pushStateJS performs a client-side route change the way SPA routers
// listen for it.
const pushStateJS = `(p) => {
	history.pushState({}, '', p);
	window.dispatchEvent(new PopStateEvent('popstate', {state: {}}));
}`
