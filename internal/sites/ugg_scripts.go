package sites

// uggContainerScript picks the element that holds the main product's
// swatches, ignoring recommendation tiles further down the page.
const uggContainerScript = `() => {
  if (document.querySelector('.product-primary-attributes')) return '.product-primary-attributes';
  const data = Array.from(document.querySelectorAll('.product-data'));
  if (data.find((d) => d.querySelector('h1'))) return '.product-data';
  return '.product-detail';
}`

// uggSwatchScript lists the visible colour swatches inside the container.
const uggSwatchScript = `(selector) => {
  const container = document.querySelector(selector);
  if (!container) return [];
  const buttons = Array.from(container.querySelectorAll(
    '.swatch-circle, .swatch-square, .color-attribute button, [data-attr="color"] button'));
  return buttons
    .filter((btn) => {
      const rect = btn.getBoundingClientRect();
      return rect.width > 0 && rect.height > 0 && window.getComputedStyle(btn).display !== 'none';
    })
    .map((btn) => ({
      title: btn.getAttribute('title') || btn.getAttribute('aria-label') || (btn.innerText || '').trim(),
      url: btn.getAttribute('value') || btn.getAttribute('data-url') || '',
    }))
    .filter((s) => s.url);
}`

// uggFetchPairScript fetches the variation and slider-image endpoints from
// inside the page so the site's cookies and origin apply. Bodies are
// returned as text and decoded by the caller.
const uggFetchPairScript = `async ({ variation, images }) => {
  const headers = {
    'Accept': 'application/json, text/javascript, */*; q=0.01',
    'X-Requested-With': 'XMLHttpRequest',
  };
  const [resVar, resImg] = await Promise.all([
    fetch(variation, { headers }),
    fetch(images, { headers }),
  ]);
  const [variationBody, imagesBody] = await Promise.all([resVar.text(), resImg.text()]);
  return { variation: variationBody, images: imagesBody };
}`

// uggSelectionScript reads the selected colour and the size buttons of the
// main product.
const uggSelectionScript = `() => {
  const color = document.querySelector(
    '.product-primary-attributes .color-display-value, .color-display-value, [data-attr="color"] .selected-value');
  const buttons = Array.from(document.querySelectorAll(
    '[data-attr="size"] button, .size-attribute button, .size-selector button'));
  return {
    current_color: color ? (color.innerText || '').trim() : '',
    sizes: buttons
      .map((b) => ({
        size: (b.getAttribute('data-attr-value') || b.innerText || '').trim(),
        available: !b.disabled && b.getAttribute('aria-disabled') !== 'true' &&
          !b.classList.contains('unselectable'),
      }))
      .filter((s) => s.size),
  };
}`
