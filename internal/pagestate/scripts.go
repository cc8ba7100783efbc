package pagestate

// Scripts evaluated in the page. Each returns plain JSON values.

const visibleTextScript = `(() => {
	if (!document.body) return "";
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT, null, false);
	const texts = [];
	let node;
	while ((node = walker.nextNode())) {
		const text = node.textContent.trim();
		if (node.parentElement && node.parentElement.offsetParent !== null && text.length > 0) {
			texts.push(text);
		}
	}
	return texts.join("\n");
})()`

const interactiveElementsScript = `(() => {
	const selectors = [
		'a', 'button', 'input', 'textarea', 'select',
		'[role="button"]', '[role="link"]', '[role="textbox"]',
		'[onclick]', '[href]', '[type="submit"]', '[type="button"]'
	];

	function getXPath(element) {
		if (element.id !== '') return '//*[@id="' + element.id + '"]';
		if (element === document.body) return '/html/body';
		if (!element.parentNode || element.parentNode.nodeType !== 1) return '/' + element.tagName.toLowerCase();
		let ix = 0;
		const siblings = element.parentNode.childNodes;
		for (let i = 0; i < siblings.length; i++) {
			const sibling = siblings[i];
			if (sibling === element) {
				return getXPath(element.parentNode) + '/' + element.tagName.toLowerCase() + '[' + (ix + 1) + ']';
			}
			if (sibling.nodeType === 1 && sibling.tagName === element.tagName) ix++;
		}
		return '';
	}

	const seen = new Set();
	const out = [];
	for (const selector of selectors) {
		for (const el of document.querySelectorAll(selector)) {
			if (seen.has(el)) continue;
			if (el.offsetParent === null || (el.offsetWidth === 0 && el.offsetHeight === 0)) continue;
			seen.add(el);
			const rect = el.getBoundingClientRect();
			out.push({
				tag: el.tagName.toLowerCase(),
				text: ((el.textContent || '').trim()).substring(0, 100),
				placeholder: el.placeholder || '',
				type: typeof el.type === 'string' ? el.type : '',
				href: typeof el.href === 'string' ? el.href : '',
				id: el.id || '',
				class: typeof el.className === 'string' ? el.className : '',
				role: el.getAttribute('role') || '',
				xpath: getXPath(el),
				center_x: Math.floor(rect.left + rect.width / 2),
				center_y: Math.floor(rect.top + rect.height / 2)
			});
		}
	}
	return out;
})()`

const outlineScript = `(() => {
	const tags = ['h1', 'h2', 'h3', 'h4', 'h5', 'h6', 'nav', 'header', 'footer', 'main', 'section', 'article'];
	const out = [];
	for (const tag of tags) {
		for (const el of document.querySelectorAll(tag)) {
			if (el.offsetParent === null) continue;
			out.push({
				tag: tag,
				text: ((el.textContent || '').trim()).substring(0, 200),
				id: el.id || ''
			});
		}
	}
	return out;
})()`

const outerHTMLScript = `document.documentElement ? document.documentElement.outerHTML : ""`
