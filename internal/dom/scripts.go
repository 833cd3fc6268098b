package dom

// ImagesScript returns every rendered image with an absolute http(s)
// source, followed by the Open Graph image when the page declares one.
const ImagesScript = `() => {
  const images = [];
  document.querySelectorAll('img').forEach((img) => {
    const src = img.src || img.dataset.src || img.dataset.originalSrc;
    if (src && src.startsWith('http')) {
      images.push({
        url: src,
        alt: img.alt || '',
        width: img.naturalWidth || 0,
        height: img.naturalHeight || 0,
      });
    }
  });
  const og = document.querySelector('meta[property="og:image"]');
  if (og && og.content) {
    images.push({ url: og.content, alt: 'og:image', width: 0, height: 0 });
  }
  return images;
}`

// ProductInfoScript takes {field: [selector, ...]} and returns {field: text}
// holding, per field, the text of the first element with non-empty text
// under the first selector that yields one. Image fields read the source
// instead of the text; dimensions keep their line structure.
const ProductInfoScript = `(selectors) => {
  const out = {};
  const read = (field, el) => {
    if (field === 'main_image') {
      return (el.currentSrc || el.src || el.getAttribute('src') || '').trim();
    }
    if (field === 'dimensions') {
      return (el.innerText || el.textContent || '').trim();
    }
    return (el.textContent || '').trim();
  };
  for (const [field, list] of Object.entries(selectors || {})) {
    for (const selector of list || []) {
      let found = '';
      try {
        for (const el of document.querySelectorAll(selector)) {
          const text = read(field, el);
          if (text) { found = text; break; }
        }
      } catch (e) {
        continue;
      }
      if (found) { out[field] = found; break; }
    }
  }
  return out;
}`
